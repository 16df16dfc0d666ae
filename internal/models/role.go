package models

import "strings"

// Role is the advisory role marker stored next to the tokens. It is only used to pick
// which UI surface to route to, the API enforces the actual authorization.
type Role string

const RoleAdmin Role = "ADMIN"
const RoleUser Role = "USER"

// ParseRole normalizes the role reported by the API. Anything that is not ADMIN is a user.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) MarshalText() (data []byte, err error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(data []byte) error {
	*r = ParseRole(string(data))
	return nil
}
