package internal

import (
	"context"
	"time"
)

// Consumer is one reader of the handoff, typically the renderer.
//
// Per-consumer state (last seen Seq, counters) is guarded by the handoff
// mutex, so a consumer shares the single critical section with Publish.
//
// Contract:
//   - ConsumeLatest/Next MUST be called from one goroutine (the consumer
//     context)
//   - Updates may be selected on from any goroutine
type Consumer struct {
	id string
	h  *Handoff

	// updates holds at most one pending signal: bursts of Publish coalesce.
	updates chan struct{}

	lastSeq        uint64
	delivered      uint64
	skipped        uint64
	lastConsumedAt time.Time

	closed bool
}

// ID returns the subscription ID.
func (c *Consumer) ID() string { return c.id }

// ConsumeLatest returns the held frame if it is newer than the last one
// returned to this consumer.
//
// Semantics:
//   - Never blocks beyond the handoff critical section
//   - Never returns the same frame twice
//   - Returns (nil, false) for "nothing new" and after close
func (c *Consumer) ConsumeLatest() (*PublishedFrame, bool) {
	h := c.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed || h.latest == nil || h.latest.Seq <= c.lastSeq {
		return nil, false
	}

	f := h.latest
	if c.delivered > 0 {
		c.skipped += f.Seq - c.lastSeq - 1
	}
	c.lastSeq = f.Seq
	c.delivered++
	c.lastConsumedAt = time.Now()
	h.delivered = true

	return f, true
}

// Updates returns a channel signalled after each Publish. Signals coalesce
// (capacity 1) and the channel is closed when the consumer is closed.
//
// Hosts that render on demand select on it and request a tick, then call
// ConsumeLatest from the render context.
func (c *Consumer) Updates() <-chan struct{} {
	return c.updates
}

// Next blocks until a new frame is available, ctx is done or the consumer
// is closed (ErrClosed).
func (c *Consumer) Next(ctx context.Context) (*PublishedFrame, error) {
	for {
		if f, ok := c.ConsumeLatest(); ok {
			return f, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, open := <-c.updates:
			if !open {
				return nil, ErrClosed
			}
		}
	}
}

// notify and close are called with h.mu held.

func (c *Consumer) notify() {
	if c.closed {
		return
	}
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Consumer) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.updates)
}
