package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func getValidRedisConfig() RedisConfig {
	return RedisConfig{
		Type:      "redis",
		Addresses: []string{"redis:6379"},
	}
}

func TestValidRedisConfig(t *testing.T) {
	config := getValidRedisConfig()

	err := config.Validate(Production)

	assert.NoError(t, err)
}

func TestInvalidRedisType(t *testing.T) {
	config := getValidRedisConfig()
	config.Type = "redis-mock"

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "redis type cannot be \"redis-mock\" in production")
}

func TestRedisSentinelNeedsMaster(t *testing.T) {
	config := getValidRedisConfig()
	config.IsSentinel = true

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "master name")
}

func TestRedisNeedsAddresses(t *testing.T) {
	config := getValidRedisConfig()
	config.Addresses = nil

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "at least one redis address")
}
