package framedump

import (
	"log/slog"
	"sync/atomic"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// Sink is the producer side of a frame pipeline.
type Sink interface {
	Allocator
	Submit(rf *frame.RawFrame) error
}

// Tee records every submitted frame before passing it on. A failed write
// is logged and counted; the frame is still submitted.
type Tee struct {
	Sink
	w      *Writer
	failed atomic.Uint64
}

// NewTee records frames submitted to sink into w.
func NewTee(sink Sink, w *Writer) *Tee {
	return &Tee{Sink: sink, w: w}
}

// Submit writes rf to the dump, then hands it to the wrapped sink.
func (t *Tee) Submit(rf *frame.RawFrame) error {
	if err := t.w.Write(rf); err != nil {
		if t.failed.Add(1) == 1 {
			slog.Warn("framedump: failed to record frame", "trace_id", rf.TraceID, "error", err)
		}
	}
	return t.Sink.Submit(rf)
}

// Failed returns the number of frames that could not be recorded.
func (t *Tee) Failed() uint64 {
	return t.failed.Load()
}
