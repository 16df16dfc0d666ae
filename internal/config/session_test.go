package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func getValidSessionConfig() SessionConfig {
	return SessionConfig{
		IdleSessionTTLSeconds:  14400,
		MaxSessionTTLSeconds:   86400,
		SweepIntervalSeconds:   60,
		CookieHashKey:          "0123456789abcdef0123456789abcdef",
		DeviceCookieMaxAgeDays: 30,
	}
}

func TestValidSessionConfig(t *testing.T) {
	config := getValidSessionConfig()

	err := config.Validate(Production)

	assert.NoError(t, err)
	assert.Equal(t, 4*time.Hour, config.IdleTTL())
	assert.Equal(t, 30*24*time.Hour, config.DeviceCookieMaxAge())
}

func TestInvalidIdleSessionTTLSeconds(t *testing.T) {
	config := getValidSessionConfig()
	config.IdleSessionTTLSeconds = -60

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "idle session TTL seconds (-60) needs to be greater than 0")
}

func TestInvalidMaxSessionTTLSeconds(t *testing.T) {
	config := getValidSessionConfig()
	config.MaxSessionTTLSeconds = 600

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "max session TTL seconds (600) cannot be less than idle session TTL seconds (14400)")
}

func TestInvalidCookieKeys(t *testing.T) {
	config := getValidSessionConfig()
	config.CookieHashKey = "short"
	assert.ErrorContains(t, config.Validate(Production), "the cookie hash key has to be at least 32 bytes long")

	config = getValidSessionConfig()
	config.CookieEncodingKey = "not-an-aes-key"
	assert.ErrorContains(t, config.Validate(Production), "the cookie encoding key has to be 16, 24 or 32 bytes long")

	config = getValidSessionConfig()
	config.CookieHashKey = ""
	assert.Error(t, config.Validate(Production))
	assert.NoError(t, config.Validate(Development))
}
