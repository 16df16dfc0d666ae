package config

import (
	"fmt"
	"time"
)

type SessionConfig struct {
	IdleSessionTTLSeconds  int
	MaxSessionTTLSeconds   int
	SweepIntervalSeconds   int
	CookieHashKey          RedactedString
	CookieEncodingKey      RedactedString
	DeviceCookieMaxAgeDays int
}

func (c *SessionConfig) Validate(e RunningEnvironment) error {
	if c.IdleSessionTTLSeconds <= 0 {
		return fmt.Errorf("idle session TTL seconds (%d) needs to be greater than 0", c.IdleSessionTTLSeconds)
	}
	if c.MaxSessionTTLSeconds > 0 && c.IdleSessionTTLSeconds > c.MaxSessionTTLSeconds {
		return fmt.Errorf("max session TTL seconds (%d) cannot be less than idle session TTL seconds (%d)", c.MaxSessionTTLSeconds, c.IdleSessionTTLSeconds)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("session sweep interval seconds (%d) needs to be greater than 0", c.SweepIntervalSeconds)
	}
	if c.DeviceCookieMaxAgeDays <= 0 {
		return fmt.Errorf("device cookie max age days (%d) needs to be greater than 0", c.DeviceCookieMaxAgeDays)
	}
	if e != Development && len(c.CookieHashKey) == 0 {
		return fmt.Errorf("a cookie hash key is required outside of development")
	}
	if len(c.CookieHashKey) > 0 && len(c.CookieHashKey) < 32 {
		return fmt.Errorf("the cookie hash key has to be at least 32 bytes long, the provided one is %d long", len(c.CookieHashKey))
	}
	switch len(c.CookieEncodingKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("the cookie encoding key has to be 16, 24 or 32 bytes long, the provided one is %d long", len(c.CookieEncodingKey))
	}
	return nil
}

func (c SessionConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleSessionTTLSeconds) * time.Second
}

func (c SessionConfig) MaxTTL() time.Duration {
	return time.Duration(c.MaxSessionTTLSeconds) * time.Second
}

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c SessionConfig) DeviceCookieMaxAge() time.Duration {
	return time.Duration(c.DeviceCookieMaxAgeDays) * 24 * time.Hour
}
