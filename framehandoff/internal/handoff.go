// Package internal implements the latest-wins frame handoff.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package.
package internal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// DefaultIdleThreshold marks a consumer idle after 30 seconds without a
// delivery.
const DefaultIdleThreshold = 30 * time.Second

// Option configures a handoff.
type Option func(*Handoff)

// WithDiscardHook receives edge maps displaced before any consumer saw them.
// The hook runs on the publishing goroutine, outside the critical section.
func WithDiscardHook(fn func(*frame.EdgeMap)) Option {
	return func(h *Handoff) {
		h.onDiscard = fn
	}
}

// WithIdleThreshold overrides DefaultIdleThreshold.
func WithIdleThreshold(d time.Duration) Option {
	return func(h *Handoff) {
		if d > 0 {
			h.idleThreshold = d
		}
	}
}

// Handoff is the single shared slot between producer and consumers.
//
// Critical sections are bounded by a pointer swap plus O(consumers)
// notifications; no frame data is copied under the lock.
//
// Thread-safety: all methods safe for concurrent use.
type Handoff struct {
	mu sync.Mutex

	// --- Slot ---

	latest    *PublishedFrame
	delivered bool   // latest was returned to at least one consumer
	seq       uint64 // last assigned sequence number

	// --- Consumers ---

	consumers map[string]*Consumer

	// --- Stats ---

	published uint64
	dropped   uint64

	// --- Config ---

	onDiscard     func(*frame.EdgeMap)
	idleThreshold time.Duration

	closed bool
}

// New creates an empty handoff (called by the public New in the parent
// package).
func New(opts ...Option) *Handoff {
	h := &Handoff{
		consumers:     make(map[string]*Consumer),
		idleThreshold: DefaultIdleThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish replaces the held frame and returns its sequence number.
//
// Algorithm:
//  1. Lock, assign next Seq, swap the slot pointer
//  2. If the displaced frame was never delivered: count a drop
//  3. Signal every consumer's update channel (non-blocking, coalesced)
//  4. Unlock, then hand the displaced edges to the discard hook
//
// Returns 0 (no-op) after Close or for nil edges.
func (h *Handoff) Publish(edges *frame.EdgeMap, ts time.Time) uint64 {
	if edges == nil {
		slog.Warn("framehandoff: nil edge map ignored")
		return 0
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}

	h.seq++
	seq := h.seq

	var displaced *PublishedFrame
	if h.latest != nil && !h.delivered {
		displaced = h.latest
		h.dropped++
	}

	h.latest = &PublishedFrame{Edges: edges, Timestamp: ts, Seq: seq}
	h.delivered = false
	h.published++

	for _, c := range h.consumers {
		c.notify()
	}
	h.mu.Unlock()

	if displaced != nil && h.onDiscard != nil {
		h.onDiscard(displaced.Edges)
	}
	return seq
}

// Subscribe registers a consumer. Re-subscribing an ID closes the previous
// Consumer for that ID.
//
// A new consumer receives the frame currently held (if any) on its first
// ConsumeLatest.
func (h *Handoff) Subscribe(id string) *Consumer {
	c := &Consumer{
		id:             id,
		h:              h,
		updates:        make(chan struct{}, 1),
		lastConsumedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.close()
		return c
	}

	if old, ok := h.consumers[id]; ok {
		old.close()
	}
	h.consumers[id] = c

	// Make an already-held frame visible to Updates subscribers.
	if h.latest != nil {
		c.notify()
	}
	return c
}

// Unsubscribe removes a consumer and closes its update channel.
// Idempotent.
func (h *Handoff) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.consumers[id]
	if !ok {
		return
	}
	c.close()
	delete(h.consumers, id)
}

// Close stops the handoff: Publish becomes a no-op, every consumer is
// closed and an undelivered held frame goes to the discard hook.
// Idempotent.
func (h *Handoff) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	for id, c := range h.consumers {
		c.close()
		delete(h.consumers, id)
	}

	var displaced *PublishedFrame
	if h.latest != nil && !h.delivered {
		displaced = h.latest
	}
	h.latest = nil
	h.mu.Unlock()

	if displaced != nil && h.onDiscard != nil {
		h.onDiscard(displaced.Edges)
	}
}

// Stats returns a snapshot of handoff and consumer counters.
func (h *Handoff) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{
		Published: h.published,
		Dropped:   h.dropped,
		Consumers: make(map[string]ConsumerStats, len(h.consumers)),
	}
	if h.latest != nil {
		stats.LatestSeq = h.latest.Seq
	}

	now := time.Now()
	for id, c := range h.consumers {
		stats.Consumers[id] = ConsumerStats{
			ConsumerID:     id,
			Delivered:      c.delivered,
			Skipped:        c.skipped,
			LastSeq:        c.lastSeq,
			LastConsumedAt: c.lastConsumedAt,
			IsIdle:         now.Sub(c.lastConsumedAt) > h.idleThreshold,
		}
	}
	return stats
}
