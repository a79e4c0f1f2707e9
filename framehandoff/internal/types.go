package internal

import (
	"errors"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// ErrClosed is returned by Consumer.Next once the consumer or the handoff
// has been closed.
var ErrClosed = errors.New("framehandoff: closed")

// PublishedFrame is one edge map made visible to consumers.
//
// IMMUTABILITY CONTRACT:
//   - Producer: MUST NOT touch Edges after Publish
//   - Consumers: read-only access, may keep the pointer as long as needed
type PublishedFrame struct {
	// Edges is the engine output, shared by reference (never copied).
	Edges *frame.EdgeMap

	// Timestamp is the capture time of the source RawFrame.
	Timestamp time.Time

	// Seq is assigned by Publish. Strictly increasing per handoff, starting at 1.
	Seq uint64
}

// Stats is a snapshot of handoff state.
type Stats struct {
	// Published counts successful Publish calls.
	Published uint64

	// Dropped counts frames replaced before any consumer took them
	// (keep-only-latest discards).
	Dropped uint64

	// LatestSeq is the sequence number of the frame currently held.
	LatestSeq uint64

	// Consumers maps consumer ID to per-consumer statistics.
	Consumers map[string]ConsumerStats
}

// ConsumerStats tracks one consumer.
type ConsumerStats struct {
	ConsumerID string

	// Delivered counts frames returned by ConsumeLatest.
	Delivered uint64

	// Skipped counts sequence numbers this consumer never saw between two
	// deliveries (frames superseded before its next tick).
	Skipped uint64

	// LastSeq is the sequence number of the last delivered frame.
	LastSeq uint64

	// LastConsumedAt is the time of the last delivery (subscription time
	// before the first one).
	LastConsumedAt time.Time

	// IsIdle reports no delivery for longer than the idle threshold.
	// An idle renderer usually means the host stopped requesting ticks.
	IsIdle bool
}
