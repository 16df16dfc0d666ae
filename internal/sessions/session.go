package sessions

import (
	"time"
)

// Session is one browsing session of a device. The session tier of the credential store
// lives exactly as long as the session.
type Session struct {
	ID       string
	DeviceID string
	// UTC timestamp for when the session was created
	CreatedAt time.Time
	// UTC timestamp for when the session will expire
	ExpiresAt      time.Time
	IdleTTLSeconds int
	MaxTTLSeconds  int
}

func (s *Session) Expired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// Touch() updates a session's ExpiresAt field according to IdleTTLSeconds and MaxTTLSeconds
func (s *Session) Touch() {
	expiresAt := time.Now().UTC().Add(s.IdleTTL())
	if s.MaxTTLSeconds > 0 {
		maxExpiresAt := s.CreatedAt.Add(s.MaxTTL())
		if expiresAt.After(maxExpiresAt) {
			expiresAt = maxExpiresAt
		}
	}
	s.ExpiresAt = expiresAt
}

func (s *Session) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLSeconds) * time.Second
}

func (s *Session) MaxTTL() time.Duration {
	return time.Duration(s.MaxTTLSeconds) * time.Second
}
