package models

import "fmt"

// CredentialPair is the access and refresh token pair issued by the API on login,
// OTP verification and refresh.
type CredentialPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (c CredentialPair) Empty() bool {
	return c.AccessToken == ""
}

// String implements the Stringer interface for printing the pair in logs
func (c CredentialPair) String() string {
	return fmt.Sprintf(
		"CredentialPair<AccessToken: %s, RefreshToken: %s>",
		redactedLength(c.AccessToken),
		redactedLength(c.RefreshToken),
	)
}

func redactedLength(value string) string {
	if value == "" {
		return "unset"
	}
	return fmt.Sprintf("redacted-%d-chars", len(value))
}
