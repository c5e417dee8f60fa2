// Package backoff computes exponential delays and retries operations with them.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitial = 100 * time.Millisecond
	defaultMax     = 5 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s

	// Jitter in [0, 1] shortens each delay by a random fraction up to Jitter,
	// so pollers contending for the same resource spread out. 0 disables it.
	Jitter float64
}

// Exponential returns the delay before retry number attempt: Initial for
// attempt 1, doubling each attempt, capped at Max. Attempts below 1 are
// treated as 1.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxDelay, jitter := defaultInitial, defaultMax, 0.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxDelay = cfg.Max
		}
		jitter = min(max(cfg.Jitter, 0), 1)
	}
	attempt = max(attempt, 1)

	d := min(float64(initial)*math.Pow(2, float64(attempt-1)), float64(maxDelay))
	if jitter > 0 {
		d -= d * jitter * rand.Float64()
	}
	return time.Duration(d)
}
