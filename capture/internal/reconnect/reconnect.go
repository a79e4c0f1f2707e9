// Package reconnect runs a source with exponential backoff restarts.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMaxRetries reports a source that kept failing.
var ErrMaxRetries = errors.New("capture: max reconnect attempts exceeded")

// Config bounds the retry schedule.
type Config struct {
	MaxRetries   int           // consecutive failures tolerated (default 5)
	InitialDelay time.Duration // first backoff (default 1s)
	MaxDelay     time.Duration // backoff cap (default 30s)
}

// DefaultConfig returns the default schedule: 1s, 2s, 4s, 8s, 16s, stop.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// State tracks consecutive failures. Reset is called by the runner once
// the source is healthy again, so only an unbroken failure streak counts
// against MaxRetries.
type State struct {
	failures   atomic.Int32
	reconnects atomic.Uint32
}

// Reset clears the failure streak.
func (s *State) Reset() {
	s.failures.Store(0)
}

// Reconnects returns the total number of restarts.
func (s *State) Reconnects() uint32 {
	return s.reconnects.Load()
}

// RunFunc runs the source until it fails (error) or ctx ends (nil).
// attempt is 0 on the first call and counts restarts after that.
type RunFunc func(ctx context.Context, attempt int) error

// Run calls fn until it returns nil, ctx is cancelled or the failure
// streak exceeds cfg.MaxRetries.
func Run(ctx context.Context, fn RunFunc, cfg Config, state *State) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		n := int(state.failures.Add(1))
		state.reconnects.Add(1)
		if n > cfg.MaxRetries {
			return fmt.Errorf("%w (%d attempts): %w", ErrMaxRetries, cfg.MaxRetries, err)
		}

		delay := Backoff(n, cfg)
		slog.Warn("capture: source failed, restarting",
			"error", err,
			"attempt", n,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Backoff returns InitialDelay * 2^(attempt-1), capped at MaxDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return min(delay, cfg.MaxDelay)
}
