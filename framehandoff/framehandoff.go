// Package framehandoff implements the latest-wins handoff between the
// producer context (edge engine) and consumer contexts (renderer, stats,
// recorders).
//
// Philosophy: "Drop frames, never queue. Display lag is worse than a
// missing frame."
//
// Design:
//   - Non-blocking Publish: pointer swap under a short mutex
//   - Per-consumer sequence tracking: no frame is delivered twice
//   - Zero-copy sharing: consumers receive the producer's EdgeMap pointer
//   - Coalesced update signal for render-on-demand hosts
package framehandoff

import (
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff/internal"
)

// PublishedFrame is re-exported from the internal package.
// See internal/types.go for full documentation.
type PublishedFrame = internal.PublishedFrame

// Consumer is re-exported from the internal package.
// See internal/consumer.go for full documentation.
type Consumer = internal.Consumer

// Stats is re-exported from the internal package.
type Stats = internal.Stats

// ConsumerStats is re-exported from the internal package.
type ConsumerStats = internal.ConsumerStats

// Option configures a Handoff.
type Option = internal.Option

// ErrClosed is returned by Consumer.Next after Unsubscribe or Close.
var ErrClosed = internal.ErrClosed

// Handoff is the public interface of the shared frame slot.
//
// Lifecycle: New() → Subscribe()/Publish()/ConsumeLatest() → Close()
//
// Thread-safety: all methods safe for concurrent use.
type Handoff interface {
	// Publish replaces the held frame and returns its sequence number.
	//
	// Semantics:
	//   - Never blocks beyond the critical section (pointer swap)
	//   - Keep-only-latest: an unconsumed predecessor is discarded and
	//     counted in Stats().Dropped
	//   - Returns 0 after Close (frame not published)
	//
	// Contract: edges MUST NOT be modified after Publish.
	Publish(edges *frame.EdgeMap, ts time.Time) uint64

	// Subscribe registers a consumer.
	//
	// Example:
	//   c := h.Subscribe("renderer")
	//   defer h.Unsubscribe("renderer")
	//   if f, ok := c.ConsumeLatest(); ok {
	//       upload(f.Edges)
	//   }
	Subscribe(id string) *Consumer

	// Unsubscribe closes and removes a consumer. Idempotent.
	Unsubscribe(id string)

	// Stats returns a snapshot (not a live view).
	Stats() Stats

	// Close stops publishing and closes every consumer. Idempotent.
	Close()
}

// New creates a Handoff.
func New(opts ...Option) Handoff {
	return internal.New(opts...)
}

// WithDiscardHook receives edge maps that were displaced before any
// consumer took them, so the producer can recycle their memory.
func WithDiscardHook(fn func(*frame.EdgeMap)) Option {
	return internal.WithDiscardHook(fn)
}

// WithIdleThreshold sets how long a consumer may go without a delivery
// before Stats reports it idle (default 30s).
func WithIdleThreshold(d time.Duration) Option {
	return internal.WithIdleThreshold(d)
}
