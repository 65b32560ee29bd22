package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds connection settings for the Redis-backed cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	// KeyPrefix namespaces this process's entries.
	KeyPrefix string `json:"key_prefix"`
}

// RedisCache is a Cache backed by Redis with graceful degradation: any
// Redis failure is logged and surfaces as a miss, never as an error, so
// callers transparently fall back to recomputation.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisCache connects to Redis and verifies connectivity. A failed ping
// still returns a usable cache in degraded mode.
func NewRedisCache[V any](cfg RedisConfig, logger zerolog.Logger) (*RedisCache[V], error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := &RedisCache[V]{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger.With().Str("component", "RedisCache").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		rc.logger.Warn().Err(err).Str("address", cfg.Address).Msg("initial Redis connection failed, cache degraded")
		return rc, nil
	}

	rc.logger.Info().Str("address", cfg.Address).Msg("Redis cache connected")
	return rc, nil
}

func (rc *RedisCache[V]) key(key string) string {
	if rc.prefix == "" {
		return key
	}
	return rc.prefix + ":" + key
}

// Get retrieves and decodes a value. Failures degrade to a miss.
func (rc *RedisCache[V]) Get(key string) (V, bool) {
	var zero V

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err == redis.Nil {
		return zero, false
	}
	if err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("Redis get failed, treating as miss")
		return zero, false
	}

	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("cached value failed to decode, treating as miss")
		return zero, false
	}
	return value, true
}

// Set stores a value with the given TTL. Failures are logged and dropped.
func (rc *RedisCache[V]) Set(key string, value V, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("value failed to encode, not cached")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rc.client.Set(ctx, rc.key(key), data, ttl).Err(); err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// Delete removes a key. Failures are logged and dropped.
func (rc *RedisCache[V]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("Redis delete failed")
	}
}

// Close releases the underlying client.
func (rc *RedisCache[V]) Close() error {
	return rc.client.Close()
}
