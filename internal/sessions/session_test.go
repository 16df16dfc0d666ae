package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	maker := NewSessionMaker(WithIdleSessionTTLSeconds(60), WithMaxSessionTTLSeconds(3600))

	session, err := maker.NewSession("device-1")

	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "device-1", session.DeviceID)
	assert.False(t, session.Expired())
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), session.ExpiresAt, 5*time.Second)
}

func TestDeviceIDsAreUnique(t *testing.T) {
	maker := NewSessionMaker()

	first, err := maker.NewDeviceID()
	require.NoError(t, err)
	second, err := maker.NewDeviceID()
	require.NoError(t, err)

	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}

func TestTouchIsCappedByMaxTTL(t *testing.T) {
	session := Session{
		CreatedAt:      time.Now().UTC().Add(-50 * time.Minute),
		IdleTTLSeconds: 1800,
		MaxTTLSeconds:  3600,
	}

	session.Touch()

	assert.WithinDuration(t, session.CreatedAt.Add(time.Hour), session.ExpiresAt, time.Second)
}

func TestTouchWithoutMaxTTL(t *testing.T) {
	session := Session{
		CreatedAt:      time.Now().UTC().Add(-50 * time.Hour),
		IdleTTLSeconds: 1800,
	}

	session.Touch()

	assert.False(t, session.Expired())
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), session.ExpiresAt, 5*time.Second)
}

func TestExpired(t *testing.T) {
	session := Session{ExpiresAt: time.Now().UTC().Add(-time.Second)}

	assert.True(t, session.Expired())
}
