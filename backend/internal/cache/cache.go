// Package cache stores small JSON values such as parsed intents and network
// stats. A miss is never an error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Cache is a keyed store of JSON values.
type Cache interface {
	// Get decodes the value under key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	rdb    *goredis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.NewUpstreamUnavailable("redis", "ping", err)
	}

	return NewRedisWithClient(rdb), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *goredis.Client) *Redis {
	return &Redis{rdb: rdb, prefix: "warmintro:", logger: logger.Named("cache")}
}

func (r *Redis) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewUpstreamUnavailable("redis", "get", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A value we can no longer decode is as good as missing.
		r.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.rdb.Del(ctx, r.prefix+key).Err()
		return false, nil
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return apperrors.NewUpstreamUnavailable("redis", "set", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		return apperrors.NewUpstreamUnavailable("redis", "delete", err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string, dst interface{}) (bool, error) { return false, nil }

func (Nop) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (Nop) Delete(ctx context.Context, keys ...string) error { return nil }

// IntentKey is the cache key for a parsed search text.
func IntentKey(text string) string {
	return "intent:" + text
}

// StatsKey is the cache key for an owner's network stats.
func StatsKey(ownerID string) string {
	return "stats:" + ownerID
}
