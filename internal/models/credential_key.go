package models

// CredentialKey names a value kept in a credential tier.
// Note the browser UI of the storefront used the same names, do not change them.
type CredentialKey string

const AccessTokenKey CredentialKey = "accessToken"
const RefreshTokenKey CredentialKey = "refreshToken"
const AdminTokenKey CredentialKey = "adminToken"
const UserRoleKey CredentialKey = "userRole"

// AllCredentialKeys lists every key removed on logout.
var AllCredentialKeys = []CredentialKey{AccessTokenKey, RefreshTokenKey, AdminTokenKey, UserRoleKey}

func (k CredentialKey) String() string {
	return string(k)
}

func (k CredentialKey) MarshalText() (data []byte, err error) {
	return []byte(k), nil
}

func (k *CredentialKey) UnmarshalText(data []byte) error {
	*k = CredentialKey(string(data))
	return nil
}

// IsSecret is false only for the role marker, every other key holds a bearer credential.
func (k CredentialKey) IsSecret() bool {
	return k != UserRoleKey
}
