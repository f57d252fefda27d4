package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultTTL = 72 * time.Hour

// RedisWindow is a Redis-backed RollingWindow. Each key is stored as a
// Redis list, newest sample at the head (LPUSH), trimmed to capacity with
// LTRIM so the list itself enforces the window size instead of a
// read-modify-write round trip.
type RedisWindow struct {
	client    *redis.Client
	namespace string
	capacity  int
	ttl       time.Duration
}

// Option configures a RedisWindow.
type Option func(*RedisWindow)

// WithNamespace sets the key prefix applied to every window key.
func WithNamespace(ns string) Option {
	return func(w *RedisWindow) {
		if ns != "" {
			w.namespace = ns
		}
	}
}

// WithTTL sets the expiry refreshed on every push, bounding how long a
// cold subject's window lingers in Redis.
func WithTTL(ttl time.Duration) Option {
	return func(w *RedisWindow) {
		if ttl > 0 {
			w.ttl = ttl
		}
	}
}

// NewRedisWindow dials addr (host:port) and verifies connectivity with a
// ping before returning, matching the fail-fast construction pattern used
// for other backing stores in this module.
func NewRedisWindow(ctx context.Context, addr, password string, db, capacity int, opts ...Option) (*RedisWindow, error) {
	if capacity <= 0 {
		capacity = 64
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	w := &RedisWindow{client: client, namespace: "integral:rollwin", capacity: capacity, ttl: defaultTTL}
	for _, opt := range opts {
		opt(w)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return w, nil
}

// Close releases the underlying Redis connection pool.
func (w *RedisWindow) Close() error {
	return w.client.Close()
}

func (w *RedisWindow) windowKey(key string) string {
	return w.namespace + ":" + key
}

func (w *RedisWindow) Push(ctx context.Context, key string, value float64) error {
	rk := w.windowKey(key)
	pipe := w.client.TxPipeline()
	pipe.LPush(ctx, rk, strconv.FormatFloat(value, 'g', -1, 64))
	pipe.LTrim(ctx, rk, 0, int64(w.capacity-1))
	pipe.Expire(ctx, rk, w.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push rolling window sample: %w", err)
	}
	return nil
}

func (w *RedisWindow) Recent(ctx context.Context, key string, n int) ([]float64, error) {
	if n <= 0 || n > w.capacity {
		n = w.capacity
	}
	raw, err := w.client.LRange(ctx, w.windowKey(key), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read rolling window: %w", err)
	}
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cached sample %q: %w", s, err)
		}
		// raw is newest-first (LPUSH head); reverse into newest-last to
		// match RollingWindow's documented contract.
		out[len(out)-1-i] = v
	}
	return out, nil
}
