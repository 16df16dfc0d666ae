package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Implements the LimitedRedisClient interface
// Only suitable for testing
// Expiry is recorded but never enforced, contexts are completely ignored
type MockRedisClient struct {
	lock    *sync.Mutex
	store   map[string]map[string]string
	expires map[string]time.Duration
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		lock:    &sync.Mutex{},
		store:   map[string]map[string]string{},
		expires: map[string]time.Duration{},
	}
}

func NewMockRedisAdapter(options ...RedisAdapterOption) *RedisAdapter {
	options = append([]RedisAdapterOption{WithRedisClient(NewMockRedisClient())}, options...)
	db, err := NewRedisAdapter(options...)
	if err != nil {
		panic(err)
	}
	return db
}

// TTL returns the last expiry set on a key, used by tests
func (m *MockRedisClient) TTL(key string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.expires[key]
}

// Fields returns a copy of the raw hash stored at key, used by tests
func (m *MockRedisClient) Fields(key string) map[string]string {
	m.lock.Lock()
	defer m.lock.Unlock()
	output := map[string]string{}
	for k, v := range m.store[key] {
		output[k] = v
	}
	return output
}

func (m *MockRedisClient) Ping(_ context.Context) *redis.StatusCmd {
	res := redis.StatusCmd{}
	res.SetVal("PONG")
	return &res
}

func (m *MockRedisClient) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.BoolCmd{}
	if _, found := m.store[key]; !found {
		res.SetVal(false)
		return &res
	}
	m.expires[key] = expiration
	res.SetVal(true)
	return &res
}

func (m *MockRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	var deleted int64
	for _, k := range keys {
		if _, found := m.store[k]; found {
			deleted++
		}
		delete(m.store, k)
		delete(m.expires, k)
	}
	res := redis.IntCmd{}
	res.SetVal(deleted)
	return &res
}

func (m *MockRedisClient) HGet(_ context.Context, key, field string) *redis.StringCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.StringCmd{}
	val, found := m.store[key][field]
	if !found {
		res.SetErr(redis.Nil)
		return &res
	}
	res.SetVal(val)
	return &res
}

func (m *MockRedisClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.IntCmd{}
	if len(values)%2 != 0 {
		res.SetErr(fmt.Errorf("number of provided values must be even"))
		return &res
	}
	hash, found := m.store[key]
	if !found {
		hash = map[string]string{}
		m.store[key] = hash
	}
	var added int64
	for i := 0; i < len(values); i += 2 {
		field := fmt.Sprint(values[i])
		if _, exists := hash[field]; !exists {
			added++
		}
		hash[field] = fmt.Sprint(values[i+1])
	}
	res.SetVal(added)
	return &res
}

func (m *MockRedisClient) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.IntCmd{}
	hash, found := m.store[key]
	if !found {
		res.SetVal(0)
		return &res
	}
	var deleted int64
	for _, field := range fields {
		if _, exists := hash[field]; exists {
			deleted++
		}
		delete(hash, field)
	}
	if len(hash) == 0 {
		delete(m.store, key)
		delete(m.expires, key)
	}
	res.SetVal(deleted)
	return &res
}
