package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/models"
	"github.com/medcart/storefront-gateway/internal/utils"
)

// Store reads credentials from the session tier first and falls back to the durable tier.
// Writes go to both tiers and are rolled back when one of them fails.
type Store struct {
	session Tier
	durable Tier
}

type entry struct {
	key   models.CredentialKey
	value string
}

type snapshot struct {
	tier   Tier
	values map[models.CredentialKey]*string
}

func (s *Store) tiers() []Tier {
	return []Tier{s.session, s.durable}
}

func (s *Store) get(ctx context.Context, key models.CredentialKey) (string, bool) {
	for _, tier := range s.tiers() {
		value, err := tier.Get(ctx, key)
		if err == nil && value != "" {
			return value, true
		}
		if err != nil && !errors.Is(err, gwerrors.ErrTokenNotFound) {
			slog.Warn(
				"CREDENTIAL STORE",
				"message",
				"reading a credential failed, trying the next tier",
				"tier",
				tier.Name(),
				"key",
				key,
				"error",
				err,
				"requestID",
				utils.RequestIDFromContext(ctx),
			)
		}
	}
	return "", false
}

// snapshot records the current values of the entries. A value that cannot be read is an
// error, restoring it as absent would delete a credential that may exist.
func (s *Store) snapshot(ctx context.Context, tier Tier, entries []entry) (snapshot, error) {
	snap := snapshot{tier: tier, values: map[models.CredentialKey]*string{}}
	for _, e := range entries {
		value, err := tier.Get(ctx, e.key)
		if errors.Is(err, gwerrors.ErrTokenNotFound) {
			snap.values[e.key] = nil
			continue
		}
		if err != nil {
			return snapshot{}, &gwerrors.StoreError{Operation: "read", Key: e.key.String(), Tier: tier.Name(), Cause: err}
		}
		snap.values[e.key] = &value
	}
	return snap, nil
}

func (s *Store) restore(ctx context.Context, snap snapshot) {
	for key, value := range snap.values {
		var err error
		if value == nil {
			err = snap.tier.Remove(ctx, key)
		} else {
			err = snap.tier.Set(ctx, key, *value)
		}
		if err != nil {
			slog.Error(
				"CREDENTIAL STORE",
				"message",
				"rolling back a credential failed",
				"tier",
				snap.tier.Name(),
				"key",
				key,
				"error",
				err,
				"requestID",
				utils.RequestIDFromContext(ctx),
			)
		}
	}
}

// set writes all entries to every tier or to none of them
func (s *Store) set(ctx context.Context, entries ...entry) error {
	written := []snapshot{}
	for _, tier := range s.tiers() {
		snap, err := s.snapshot(ctx, tier, entries)
		if err != nil {
			for i := len(written) - 1; i >= 0; i-- {
				s.restore(ctx, written[i])
			}
			return err
		}
		written = append(written, snap)
		for _, e := range entries {
			err := tier.Set(ctx, e.key, e.value)
			if err == nil {
				continue
			}
			for i := len(written) - 1; i >= 0; i-- {
				s.restore(ctx, written[i])
			}
			return &gwerrors.StoreError{Operation: "set", Key: e.key.String(), Tier: tier.Name(), Cause: err}
		}
	}
	return nil
}

func (s *Store) remove(ctx context.Context, keys ...models.CredentialKey) error {
	errs := []error{}
	for _, tier := range s.tiers() {
		err := tier.Remove(ctx, keys...)
		if err != nil {
			errs = append(errs, &gwerrors.StoreError{Operation: "remove", Tier: tier.Name(), Cause: err})
		}
	}
	return errors.Join(errs...)
}

func (s *Store) GetAccessToken(ctx context.Context) (string, bool) {
	return s.get(ctx, models.AccessTokenKey)
}

func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.set(ctx, entry{models.AccessTokenKey, token})
}

func (s *Store) GetRefreshToken(ctx context.Context) (string, bool) {
	return s.get(ctx, models.RefreshTokenKey)
}

func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.set(ctx, entry{models.RefreshTokenKey, token})
}

func (s *Store) GetAdminToken(ctx context.Context) (string, bool) {
	return s.get(ctx, models.AdminTokenKey)
}

func (s *Store) SetAdminToken(ctx context.Context, token string) error {
	return s.set(ctx, entry{models.AdminTokenKey, token})
}

// GetUserRole returns the advisory role marker, it must not be used for authorization.
func (s *Store) GetUserRole(ctx context.Context) (models.Role, bool) {
	raw, found := s.get(ctx, models.UserRoleKey)
	if !found {
		return "", false
	}
	return models.ParseRole(raw), true
}

func (s *Store) SetUserRole(ctx context.Context, role models.Role) error {
	return s.set(ctx, entry{models.UserRoleKey, string(role)})
}

// SetCredentials stores a freshly issued pair. An empty refresh token keeps the current one.
func (s *Store) SetCredentials(ctx context.Context, pair models.CredentialPair) error {
	if pair.Empty() {
		return fmt.Errorf("cannot store a credential pair without an access token")
	}
	entries := []entry{{models.AccessTokenKey, pair.AccessToken}}
	if pair.RefreshToken != "" {
		entries = append(entries, entry{models.RefreshTokenKey, pair.RefreshToken})
	}
	return s.set(ctx, entries...)
}

// RotateCredentials stores a pair issued by a refresh. An admin token that is already stored
// belongs to the same login and is replaced by the new access token in the same write.
func (s *Store) RotateCredentials(ctx context.Context, pair models.CredentialPair) error {
	if pair.Empty() {
		return fmt.Errorf("cannot store a credential pair without an access token")
	}
	entries := []entry{{models.AccessTokenKey, pair.AccessToken}}
	if pair.RefreshToken != "" {
		entries = append(entries, entry{models.RefreshTokenKey, pair.RefreshToken})
	}
	if _, found := s.GetAdminToken(ctx); found {
		entries = append(entries, entry{models.AdminTokenKey, pair.AccessToken})
	}
	return s.set(ctx, entries...)
}

// RemoveAccessToken removes every credential and the role marker from both tiers.
// It is the single logout primitive and can be called any number of times.
func (s *Store) RemoveAccessToken(ctx context.Context) error {
	slog.Debug("CREDENTIAL STORE", "message", "removing all credentials", "requestID", utils.RequestIDFromContext(ctx))
	return s.remove(ctx, models.AllCredentialKeys...)
}

// EndSession clears the session tier only, the durable tier keeps the client logged in.
func (s *Store) EndSession(ctx context.Context) error {
	err := s.session.Clear(ctx)
	if err != nil {
		return &gwerrors.StoreError{Operation: "clear", Tier: s.session.Name(), Cause: err}
	}
	return nil
}

type StoreOption func(*Store) error

func WithSessionTier(tier Tier) StoreOption {
	return func(s *Store) error {
		s.session = tier
		return nil
	}
}

func WithDurableTier(tier Tier) StoreOption {
	return func(s *Store) error {
		s.durable = tier
		return nil
	}
}

func NewStore(options ...StoreOption) (*Store, error) {
	s := Store{}
	for _, opt := range options {
		err := opt(&s)
		if err != nil {
			return &Store{}, err
		}
	}
	if s.session == nil {
		return &Store{}, fmt.Errorf("session tier not initialized")
	}
	if s.durable == nil {
		return &Store{}, fmt.Errorf("durable tier not initialized")
	}
	return &s, nil
}
