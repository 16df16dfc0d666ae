package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitedRedisClient is the limited set of functionality expected from the redis client in this adapter.
// This allows for easy mocking and swapping of the client. The universal redis client interface is way too big.
type LimitedRedisClient interface {
	// General commands

	// PING
	Ping(ctx context.Context) *redis.StatusCmd
	// EXPIRE key seconds
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	// DEL key [key ...]
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// Hash commands

	// HGET key field
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	// HSET key field value [field value ...]
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	// HDEL key field [field ...]
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}
