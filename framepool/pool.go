// Package framepool recycles raw camera frame memory so the producer never
// allocates per frame in steady state.
//
// Design:
//   - Best-fit reuse: Acquire hands out the smallest released slot whose
//     capacity covers the request.
//   - Bounded retention: at most MaxRetained slots sit on the free list;
//     extra releases are dropped for the GC. The free list never shrinks on
//     its own (Drain is explicit, used at teardown).
//   - Exclusive ownership: a slot is either in use by exactly one frame or on
//     the free list, never both.
package framepool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

const (
	// DefaultMaxRetained keeps enough slots for one frame being filled, one
	// pending and one in flight, plus one spare for resolution switches.
	DefaultMaxRetained = 4

	// DefaultMaxSlotBytes caps a single slot at a 4K NV21 frame.
	DefaultMaxSlotBytes = 3840 * 2160 * 3 / 2
)

// ErrSlotReleased reports a second Release of the same slot.
var ErrSlotReleased = errors.New("framepool: slot already released")

// Slot is a reusable frame buffer. It implements frame.Releaser.
type Slot struct {
	buf  []byte
	size int
	pool *Pool

	inUse bool // guarded by pool.mu
}

// Bytes returns the writable region sized to the last Acquire request.
func (s *Slot) Bytes() []byte {
	return s.buf[:s.size]
}

// Cap returns the slot capacity in bytes.
func (s *Slot) Cap() int {
	return cap(s.buf)
}

// Release returns the slot to its pool.
func (s *Slot) Release() error {
	return s.pool.release(s)
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Allocations      uint64 // Slots created by Acquire
	Reuses           uint64 // Acquires served from the free list
	Releases         uint64 // Slots returned by their holder
	Discards         uint64 // Released slots dropped because the free list was full
	Failures         uint64 // Acquires rejected with ErrOutOfMemory
	Outstanding      int    // Slots currently held by frames
	OutstandingBytes int    // Capacity of outstanding slots
	Retained         int    // Slots on the free list
}

// Pool is a bounded free list of frame buffers. Safe for concurrent use.
type Pool struct {
	mu   sync.Mutex
	free []*Slot

	maxRetained         int
	maxSlotBytes        int
	maxOutstandingBytes int // 0 = unbounded

	stats Stats
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxRetained bounds the free list length.
func WithMaxRetained(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.maxRetained = n
		}
	}
}

// WithMaxSlotBytes bounds a single Acquire.
func WithMaxSlotBytes(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxSlotBytes = n
		}
	}
}

// WithMaxOutstandingBytes bounds the total capacity held by frames at once.
func WithMaxOutstandingBytes(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxOutstandingBytes = n
		}
	}
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		maxRetained:  DefaultMaxRetained,
		maxSlotBytes: DefaultMaxSlotBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a slot with at least size writable bytes.
//
// Algorithm:
//  1. Validate size against the slot cap
//  2. Best-fit search of the free list (smallest capacity ≥ size)
//  3. Otherwise allocate, unless the outstanding budget would be exceeded
//
// Returns frame.ErrOutOfMemory (wrapped) when no memory can be provided.
func (p *Pool) Acquire(size int) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size <= 0 || size > p.maxSlotBytes {
		p.stats.Failures++
		return nil, fmt.Errorf("framepool: acquire %d bytes (max %d): %w", size, p.maxSlotBytes, frame.ErrOutOfMemory)
	}

	best := -1
	for i, s := range p.free {
		if cap(s.buf) >= size && (best < 0 || cap(s.buf) < cap(p.free[best].buf)) {
			best = i
		}
	}

	if best >= 0 {
		s := p.free[best]
		last := len(p.free) - 1
		p.free[best] = p.free[last]
		p.free[last] = nil
		p.free = p.free[:last]

		s.size = size
		s.inUse = true
		p.stats.Reuses++
		p.stats.Outstanding++
		p.stats.OutstandingBytes += cap(s.buf)
		p.stats.Retained = len(p.free)
		return s, nil
	}

	if p.maxOutstandingBytes > 0 && p.stats.OutstandingBytes+size > p.maxOutstandingBytes {
		p.stats.Failures++
		return nil, fmt.Errorf("framepool: outstanding budget %d bytes exhausted: %w", p.maxOutstandingBytes, frame.ErrOutOfMemory)
	}

	buf, err := allocate(size)
	if err != nil {
		p.stats.Failures++
		return nil, err
	}

	s := &Slot{buf: buf, size: size, pool: p, inUse: true}
	p.stats.Allocations++
	p.stats.Outstanding++
	p.stats.OutstandingBytes += cap(buf)

	slog.Debug("framepool: slot allocated", "bytes", size, "outstanding", p.stats.Outstanding)
	return s, nil
}

// allocate converts a runtime allocation panic into ErrOutOfMemory.
func allocate(size int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("framepool: allocate %d bytes: %v: %w", size, r, frame.ErrOutOfMemory)
		}
	}()
	return make([]byte, size), nil
}

func (p *Pool) release(s *Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.inUse {
		return ErrSlotReleased
	}
	s.inUse = false
	p.stats.Releases++
	p.stats.Outstanding--
	p.stats.OutstandingBytes -= cap(s.buf)

	if len(p.free) >= p.maxRetained {
		p.stats.Discards++
		return nil
	}

	p.free = append(p.free, s)
	p.stats.Retained = len(p.free)
	return nil
}

// Drain drops every retained slot. Outstanding slots are unaffected and may
// still be released afterwards.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.free {
		p.free[i] = nil
	}
	p.free = p.free[:0]
	p.stats.Retained = 0
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
