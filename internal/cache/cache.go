// Package cache provides the rolling-window metrics cache used by FRS
// (recent-valuation medians feeding the valuation_drift detector) and by
// ITC (equivalence-band smoothing). A RollingWindow is a fixed-capacity,
// append-only-per-push FIFO of float64 samples keyed by an arbitrary
// subject id (a node id, a skill tier, ...). It is backed by Redis when a
// DSN is configured and falls back to an in-process store otherwise, so
// callers code against the interface and never branch on deployment mode.
package cache

import "context"

// RollingWindow is a bounded per-key series of recent numeric samples.
type RollingWindow interface {
	// Push appends value to key's window, evicting the oldest sample once
	// the window exceeds its configured capacity.
	Push(ctx context.Context, key string, value float64) error
	// Recent returns up to n of the most recently pushed values for key,
	// newest last. Fewer than n values are returned if the window holds
	// fewer samples.
	Recent(ctx context.Context, key string, n int) ([]float64, error)
}
