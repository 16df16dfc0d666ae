package sessions

import (
	"log/slog"
	"time"

	"github.com/medcart/storefront-gateway/internal/models"
)

type SessionMaker interface {
	NewSession(deviceID string) (Session, error)
	NewDeviceID() (string, error)
}

type SessionMakerImpl struct {
	idleSessionTTLSeconds int
	maxSessionTTLSeconds  int
	sessionIDGenerator    models.IDGenerator
	deviceIDGenerator     models.IDGenerator
}

func (sm *SessionMakerImpl) NewSession(deviceID string) (Session, error) {
	id, err := sm.sessionIDGenerator.ID()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		ID:             id,
		DeviceID:       deviceID,
		CreatedAt:      time.Now().UTC(),
		IdleTTLSeconds: sm.idleSessionTTLSeconds,
		MaxTTLSeconds:  sm.maxSessionTTLSeconds,
	}
	session.Touch()
	slog.Debug("NEW SESSION", "sessionID", session.ID, "deviceID", deviceID, "expiresAt", session.ExpiresAt)
	return session, nil
}

func (sm *SessionMakerImpl) NewDeviceID() (string, error) {
	return sm.deviceIDGenerator.ID()
}

type SessionMakerOption func(*SessionMakerImpl)

func WithIdleSessionTTLSeconds(s int) SessionMakerOption {
	return func(sm *SessionMakerImpl) {
		sm.idleSessionTTLSeconds = s
	}
}

func WithMaxSessionTTLSeconds(s int) SessionMakerOption {
	return func(sm *SessionMakerImpl) {
		sm.maxSessionTTLSeconds = s
	}
}

func WithSessionIDGenerator(g models.IDGenerator) SessionMakerOption {
	return func(sm *SessionMakerImpl) {
		sm.sessionIDGenerator = g
	}
}

func NewSessionMaker(options ...SessionMakerOption) SessionMaker {
	sm := SessionMakerImpl{
		sessionIDGenerator: models.NewRandomGenerator(24),
		deviceIDGenerator:  models.ULIDGenerator{},
	}
	for _, opt := range options {
		opt(&sm)
	}
	return &sm
}
