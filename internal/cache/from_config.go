package cache

import (
	"context"

	"github.com/liminalvillage/integral-sub001/pkg/config"
)

// FromConfig builds the rolling-window cache for cfg: a RedisWindow when
// Addr is set, otherwise an in-process MemoryWindow. capacity bounds the
// number of samples retained per key.
func FromConfig(ctx context.Context, cfg config.CacheConfig, capacity int) (RollingWindow, error) {
	if cfg.Addr == "" {
		return NewMemoryWindow(capacity), nil
	}
	return NewRedisWindow(ctx, cfg.Addr, cfg.Password, cfg.DB, capacity)
}
