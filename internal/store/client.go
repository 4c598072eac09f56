package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client wraps *redis.Client with the JSON-codec facade components use.
// Every method maps go-redis errors (notably redis.Nil) onto the apperr
// taxonomy so callers branch on Kind instead of comparing against
// redis.Nil directly.
type Client struct {
	rdb *redis.Client
	log zerolog.Logger
}

// Config mirrors the REDIS_* environment variables from spec §6.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New constructs a pooled Redis client. The pool defaults to 50 connections
// per spec §5 ("Redis connection: pooled, default max 50").
func New(cfg Config, log zerolog.Logger) *Client {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 50
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &Client{rdb: rdb, log: log.With().Str("component", "redis_store").Logger()}
}

// NewFromRedis wraps an already-constructed *redis.Client (used by tests
// against miniredis, where the dial options above don't apply).
func NewFromRedis(rdb *redis.Client, log zerolog.Logger) *Client {
	return &Client{rdb: rdb, log: log.With().Str("component", "redis_store").Logger()}
}

// Ping verifies connectivity, surfacing apperr.RedisUnavailable on failure.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.Ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Set JSON-encodes value and stores it under key with no expiry.
func (c *Client) Set(ctx context.Context, key string, value any) error {
	return c.SetEx(ctx, key, value, 0)
}

// SetEx JSON-encodes value and stores it under key with the given TTL
// (ttl <= 0 means no expiry, matching redis.Client.Set semantics).
func (c *Client) SetEx(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "store.SetEx", err)
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.SetEx", err)
	}
	return nil
}

// Get JSON-decodes the value stored under key into dst. Returns
// apperr.NotFound if the key does not exist.
func (c *Client) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return apperr.New(apperr.NotFound, "store.Get", key)
		}
		return apperr.Wrap(apperr.RedisUnavailable, "store.Get", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.Internal, "store.Get", err)
	}
	return nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.RedisUnavailable, "store.Exists", err)
	}
	return n > 0, nil
}

// Delete removes one or more keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.Delete", err)
	}
	return nil
}

// HSet JSON-encodes value and stores it in the hash at key under field.
func (c *Client) HSet(ctx context.Context, key, field string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "store.HSet", err)
	}
	if err := c.rdb.HSet(ctx, key, field, payload).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.HSet", err)
	}
	return nil
}

// HGet JSON-decodes the hash field at key into dst.
func (c *Client) HGet(ctx context.Context, key, field string, dst any) error {
	raw, err := c.rdb.HGet(ctx, key, field).Bytes()
	if err != nil {
		if err == redis.Nil {
			return apperr.New(apperr.NotFound, "store.HGet", field)
		}
		return apperr.Wrap(apperr.RedisUnavailable, "store.HGet", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.Internal, "store.HGet", err)
	}
	return nil
}

// HGetAll returns every field in the hash at key as raw JSON payloads,
// letting the caller decode into the concrete type it expects per field.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.RedisUnavailable, "store.HGetAll", err)
	}
	out := make(map[string][]byte, len(raw))
	for field, val := range raw {
		out[field] = []byte(val)
	}
	return out, nil
}

// HDel removes one or more fields from the hash at key.
func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.HDel", err)
	}
	return nil
}

// Rename atomically replaces dst's value with src's, removing src. Used by
// components that build a new value off to the side then swap it in so
// readers never observe a partially-written collection.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	if err := c.rdb.Rename(ctx, src, dst).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.Rename", err)
	}
	return nil
}

// Expire refreshes a key's TTL without rewriting its value.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.Expire", err)
	}
	return nil
}

// Scan iterates all keys matching pattern, invoking fn for each. Iteration
// stops at the first error fn returns.
func (c *Client) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return apperr.Wrap(apperr.RedisUnavailable, "store.Scan", err)
	}
	return nil
}

// FlushNamespace deletes every key matching pattern — used by the
// cleanup_charts job for chart_data:*, scoped to a caller-supplied pattern
// rather than flushing the whole logical database (see DESIGN.md's
// resolution of the corresponding spec Open Question).
func (c *Client) FlushNamespace(ctx context.Context, pattern string) error {
	var keys []string
	if err := c.Scan(ctx, pattern, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Delete(ctx, keys...)
}
