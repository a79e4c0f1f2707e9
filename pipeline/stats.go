package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framepool"
)

type counters struct {
	submitted atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64

	lastLatency atomic.Int64 // nanoseconds
}

// Stats is a point-in-time snapshot of one pipeline.
//
// Accounting: every accepted frame (Submitted) ends as exactly one of
// Processed, Dropped (replaced while pending) or Discarded (shutdown or
// cancellation), or as Failed when the engine rejects it. Rejected and
// format failures are never counted as Submitted.
type Stats struct {
	ID string

	Submitted uint64
	Processed uint64
	Dropped   uint64
	Rejected  uint64
	Failed    uint64
	Discarded uint64

	LastLatency time.Duration

	Pool    framepool.Stats
	Handoff framehandoff.Stats
}

// Stats returns current counters. Safe to call concurrently.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ID:          p.id,
		Submitted:   p.stats.submitted.Load(),
		Processed:   p.stats.processed.Load(),
		Dropped:     p.stats.dropped.Load(),
		Rejected:    p.stats.rejected.Load(),
		Failed:      p.stats.failed.Load(),
		Discarded:   p.stats.discarded.Load(),
		LastLatency: time.Duration(p.stats.lastLatency.Load()),
		Pool:        p.pool.Stats(),
		Handoff:     p.handoff.Stats(),
	}
}
