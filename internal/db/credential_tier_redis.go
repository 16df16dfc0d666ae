package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

const credentialsPrefix string = "credentials"

// RedisTier is the durable credential tier of one device
type RedisTier struct {
	adapter   *RedisAdapter
	namespace string
}

func (t *RedisTier) Name() string {
	return "durable"
}

func (t *RedisTier) key() string {
	return t.adapter.credentialsKey(t.namespace)
}

// binding ties a sealed value to the device hash and the field it is stored in
func (t *RedisTier) binding(key models.CredentialKey) string {
	return t.key() + "/" + key.String()
}

// Get reads a credential, decrypting it if necessary. A missing credential results in gwerrors.ErrTokenNotFound.
func (t *RedisTier) Get(ctx context.Context, key models.CredentialKey) (string, error) {
	value, err := t.adapter.rdb.HGet(ctx, t.key(), key.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", gwerrors.ErrTokenNotFound
		}
		return "", err
	}
	if key.IsSecret() && t.adapter.sealer != nil {
		value, err = t.adapter.sealer.Open(value, t.binding(key))
		if err != nil {
			return "", fmt.Errorf("cannot decrypt %s: %w", key, err)
		}
	}
	return value, nil
}

// Set writes a credential and slides the expiry of the whole device hash.
func (t *RedisTier) Set(ctx context.Context, key models.CredentialKey, value string) error {
	var err error
	if key.IsSecret() && t.adapter.sealer != nil {
		value, err = t.adapter.sealer.Seal(value, t.binding(key))
		if err != nil {
			return err
		}
	}
	slog.Debug(
		"CREDENTIAL STORE",
		"message",
		"saving credential",
		"tier",
		t.Name(),
		"key",
		key,
		"encrypted",
		t.adapter.sealer != nil,
	)
	err = t.adapter.rdb.HSet(ctx, t.key(), key.String(), value).Err()
	if err != nil {
		return err
	}
	if t.adapter.ttl > 0 {
		return t.adapter.rdb.Expire(ctx, t.key(), t.adapter.ttl).Err()
	}
	return nil
}

// Remove deletes the provided credentials, missing ones are ignored
func (t *RedisTier) Remove(ctx context.Context, keys ...models.CredentialKey) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, key.String())
	}
	return t.adapter.rdb.HDel(ctx, t.key(), fields...).Err()
}

// Clear removes everything stored for the device
func (t *RedisTier) Clear(ctx context.Context) error {
	return t.adapter.rdb.Del(ctx, t.key()).Err()
}
