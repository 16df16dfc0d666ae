package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/config"
	"github.com/medcart/storefront-gateway/internal/credentials"
	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/utils"
)

// DurableTiers returns the durable credential tier of a device
type DurableTiers func(deviceID string) credentials.Tier

type SessionStore struct {
	sessionMaker   SessionMaker
	sessionRepo    *InMemorySessionStore
	memory         *credentials.MemoryBackend
	durableTiers   DurableTiers
	cookieHandler  *securecookie.SecureCookie
	cookieTemplate func() http.Cookie
	deviceMaxAge   time.Duration
	sweepInterval  time.Duration
	metrics        *metrics.GatewayMetrics
}

// Middleware loads (or starts) the browser session and the device of the request and places
// the matching credential store in the echo context.
func (sessions *SessionStore) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			deviceID, err := sessions.loadDevice(c)
			if err != nil {
				return err
			}
			session, err := sessions.load(c, deviceID)
			if err != nil {
				return err
			}
			store, err := credentials.NewStore(
				credentials.WithSessionTier(sessions.memory.Tier(session.ID)),
				credentials.WithDurableTier(sessions.durableTiers(deviceID)),
			)
			if err != nil {
				return err
			}
			c.Set(SessionCtxKey, session)
			c.Set(CredentialsCtxKey, store)
			return next(c)
		}
	}
}

func (sessions *SessionStore) loadDevice(c echo.Context) (string, error) {
	deviceID, err := sessions.readCookie(c, DeviceCookieName)
	if err == nil && deviceID != "" {
		return deviceID, nil
	}
	if err != nil && !errors.Is(err, http.ErrNoCookie) {
		slog.Info(
			"SESSION MIDDLEWARE",
			"message",
			"ignoring invalid device cookie",
			"error",
			err,
			"requestID",
			utils.GetRequestID(c),
		)
	}
	deviceID, err = sessions.sessionMaker.NewDeviceID()
	if err != nil {
		return "", err
	}
	cookie, err := sessions.cookie(DeviceCookieName, deviceID, sessions.deviceMaxAge)
	if err != nil {
		return "", err
	}
	c.SetCookie(&cookie)
	return deviceID, nil
}

func (sessions *SessionStore) load(c echo.Context, deviceID string) (*Session, error) {
	ctx := c.Request().Context()
	sessionID, err := sessions.readCookie(c, SessionCookieName)
	if err == nil && sessionID != "" {
		session, err := sessions.sessionRepo.GetSession(ctx, sessionID)
		switch {
		case err == nil && !session.Expired() && session.DeviceID == deviceID:
			session.Touch()
			err = sessions.sessionRepo.SetSession(ctx, session)
			if err != nil {
				return nil, err
			}
			return &session, nil
		case err == nil:
			slog.Debug(
				"SESSION MIDDLEWARE",
				"message",
				"session expired or moved to another device",
				"sessionID",
				session.ID,
				"requestID",
				utils.GetRequestID(c),
			)
			sessions.end(ctx, session.ID)
		case !errors.Is(err, gwerrors.ErrSessionNotFound):
			return nil, err
		}
	}
	session, err := sessions.sessionMaker.NewSession(deviceID)
	if err != nil {
		return nil, err
	}
	err = sessions.sessionRepo.SetSession(ctx, session)
	if err != nil {
		return nil, err
	}
	cookie, err := sessions.cookie(SessionCookieName, session.ID, 0)
	if err != nil {
		return nil, err
	}
	c.SetCookie(&cookie)
	sessions.metrics.ActiveSessions(sessions.sessionRepo.Len())
	return &session, nil
}

// end forgets a browsing session, the durable credentials of the device are kept
func (sessions *SessionStore) end(ctx context.Context, sessionID string) {
	sessions.memory.Drop(sessionID)
	err := sessions.sessionRepo.RemoveSession(ctx, sessionID)
	if err != nil {
		slog.Error("SESSION MIDDLEWARE", "message", "removing session failed", "sessionID", sessionID, "error", err)
	}
}

// Delete ends the session of the request and expires its cookie
func (sessions *SessionStore) Delete(c echo.Context) error {
	session, err := SessionFromContext(c)
	if err != nil {
		return err
	}
	sessions.end(c.Request().Context(), session.ID)
	cookie := sessions.cookieTemplate()
	cookie.Name = SessionCookieName
	cookie.MaxAge = -1
	c.SetCookie(&cookie)
	sessions.metrics.ActiveSessions(sessions.sessionRepo.Len())
	return nil
}

// Sweep ends every expired session and returns how many were removed
func (sessions *SessionStore) Sweep(ctx context.Context) int {
	expired := sessions.sessionRepo.RemoveExpired(ctx)
	for _, session := range expired {
		sessions.memory.Drop(session.ID)
	}
	sessions.metrics.SessionsSwept(len(expired))
	sessions.metrics.ActiveSessions(sessions.sessionRepo.Len())
	if len(expired) > 0 {
		slog.Debug("SESSION SWEEPER", "message", "expired sessions removed", "count", len(expired))
	}
	return len(expired)
}

// GetScheduler returns a scheduler that periodically sweeps expired sessions, it has to be started by the caller
func (sessions *SessionStore) GetScheduler(ctx context.Context) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(sessions.sweepInterval).SingletonMode().Do(func() {
		sessions.Sweep(ctx)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (sessions *SessionStore) cookie(name, value string, maxAge time.Duration) (http.Cookie, error) {
	cookie := sessions.cookieTemplate()
	cookie.Name = name
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	if sessions.cookieHandler == nil {
		cookie.Value = value
		return cookie, nil
	}
	encoded, err := sessions.cookieHandler.Encode(name, value)
	if err != nil {
		return http.Cookie{}, err
	}
	cookie.Value = encoded
	return cookie, nil
}

func (sessions *SessionStore) readCookie(c echo.Context, name string) (string, error) {
	cookie, err := c.Cookie(name)
	if err != nil {
		return "", err
	}
	if sessions.cookieHandler == nil {
		return cookie.Value, nil
	}
	var value string
	err = sessions.cookieHandler.Decode(name, cookie.Value, &value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// CredentialsFromContext returns the credential store placed in the context by the middleware
func CredentialsFromContext(c echo.Context) (*credentials.Store, error) {
	store, ok := c.Get(CredentialsCtxKey).(*credentials.Store)
	if !ok || store == nil {
		return nil, gwerrors.ErrSessionNotFound
	}
	return store, nil
}

func SessionFromContext(c echo.Context) (*Session, error) {
	raw := c.Get(SessionCtxKey)
	if raw == nil {
		return nil, gwerrors.ErrSessionNotFound
	}
	session, ok := raw.(*Session)
	if !ok {
		return nil, gwerrors.ErrSessionParse
	}
	if session == nil {
		return nil, gwerrors.ErrSessionNotFound
	}
	return session, nil
}

type SessionStoreOption func(*SessionStore) error

func WithConfig(c config.SessionConfig) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.sessionMaker = NewSessionMaker(
			WithIdleSessionTTLSeconds(c.IdleSessionTTLSeconds),
			WithMaxSessionTTLSeconds(c.MaxSessionTTLSeconds),
		)
		sessions.deviceMaxAge = c.DeviceCookieMaxAge()
		sessions.sweepInterval = c.SweepInterval()
		if len(c.CookieHashKey) > 0 {
			var encodingKey []byte
			if len(c.CookieEncodingKey) > 0 {
				encodingKey = []byte(c.CookieEncodingKey)
			}
			handler := securecookie.New([]byte(c.CookieHashKey), encodingKey)
			handler.MaxAge(int(sessions.deviceMaxAge.Seconds()))
			sessions.cookieHandler = handler
		}
		return nil
	}
}

func WithSessionMaker(maker SessionMaker) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.sessionMaker = maker
		return nil
	}
}

func WithCookieHandler(handler *securecookie.SecureCookie) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.cookieHandler = handler
		return nil
	}
}

func WithCookieTemplate(f func() http.Cookie) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.cookieTemplate = f
		return nil
	}
}

func WithMemoryBackend(backend *credentials.MemoryBackend) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.memory = backend
		return nil
	}
}

func WithDurableTiers(f DurableTiers) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.durableTiers = f
		return nil
	}
}

func WithMetrics(m *metrics.GatewayMetrics) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.metrics = m
		return nil
	}
}

func NewSessionStore(options ...SessionStoreOption) (*SessionStore, error) {
	sessions := SessionStore{
		sessionRepo: NewInMemorySessionStore(),
		memory:      credentials.NewMemoryBackend(),
		cookieTemplate: func() http.Cookie {
			return http.Cookie{
				Path:     "/",
				Secure:   true,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode}
		},
		deviceMaxAge:  30 * 24 * time.Hour,
		sweepInterval: time.Minute,
	}
	for _, opt := range options {
		err := opt(&sessions)
		if err != nil {
			return &SessionStore{}, err
		}
	}
	if sessions.sessionMaker == nil {
		return &SessionStore{}, fmt.Errorf("session maker is not initialized")
	}
	if sessions.durableTiers == nil {
		return &SessionStore{}, fmt.Errorf("durable credential tiers are not initialized")
	}
	if sessions.memory == nil {
		return &SessionStore{}, fmt.Errorf("session credential tier is not initialized")
	}
	if sessions.sweepInterval <= 0 {
		return &SessionStore{}, fmt.Errorf("invalid session sweep interval %s", sessions.sweepInterval)
	}
	return &sessions, nil
}
