package db

import (
	"context"
	"fmt"
	"time"

	"github.com/medcart/storefront-gateway/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisAdapter persists the durable credential tier. Every device gets one hash,
// the fields of the hash are the credential keys.
type RedisAdapter struct {
	rdb    LimitedRedisClient
	sealer Sealer
	ttl    time.Duration
}

// Ping checks that redis is reachable
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Tier returns the durable credential tier of a single device.
func (r *RedisAdapter) Tier(namespace string) *RedisTier {
	return &RedisTier{adapter: r, namespace: namespace}
}

func (RedisAdapter) credentialsKey(namespace string) string {
	return credentialsPrefix + ":" + namespace
}

type RedisAdapterOption func(*RedisAdapter) error

func WithRedisConfig(redisConfig config.RedisConfig) RedisAdapterOption {
	return func(r *RedisAdapter) error {
		switch redisConfig.Type {
		case config.DBTypeRedis:
			if len(redisConfig.Addresses) == 0 {
				return fmt.Errorf("no redis addresses provided")
			}
			if redisConfig.IsSentinel {
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:       redisConfig.MasterName,
					SentinelAddrs:    redisConfig.Addresses,
					Password:         string(redisConfig.Password),
					DB:               redisConfig.DBIndex,
					SentinelPassword: string(redisConfig.Password),
				})
				r.rdb = rdb
				return nil
			}
			rdb := redis.NewClient(&redis.Options{
				Password: string(redisConfig.Password),
				DB:       redisConfig.DBIndex,
				Addr:     redisConfig.Addresses[0],
			})
			r.rdb = rdb
			return nil
		case config.DBTypeRedisMock:
			r.rdb = NewMockRedisClient()
			return nil
		default:
			return fmt.Errorf("unrecognized persistence type %v", redisConfig.Type)
		}
	}
}

func WithRedisClient(client LimitedRedisClient) RedisAdapterOption {
	return func(r *RedisAdapter) error {
		r.rdb = client
		return nil
	}
}

func WithSealingKey(secretKey string) RedisAdapterOption {
	return func(r *RedisAdapter) error {
		sealer, err := NewGCMSealer(secretKey)
		if err != nil {
			return err
		}
		r.sealer = sealer
		return nil
	}
}

// WithTTL sets how long the durable credentials of a device survive without being written.
// A zero TTL keeps them until they are removed.
func WithTTL(ttl time.Duration) RedisAdapterOption {
	return func(r *RedisAdapter) error {
		if ttl < 0 {
			return fmt.Errorf("invalid durable tier TTL %s", ttl)
		}
		r.ttl = ttl
		return nil
	}
}

func NewRedisAdapter(options ...RedisAdapterOption) (*RedisAdapter, error) {
	db := RedisAdapter{}
	for _, opt := range options {
		err := opt(&db)
		if err != nil {
			return &RedisAdapter{}, err
		}
	}
	if db.rdb == nil {
		return &RedisAdapter{}, fmt.Errorf("redis client is not initialized")
	}
	return &db, nil
}
