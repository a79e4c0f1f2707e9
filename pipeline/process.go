package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/colorspace"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// Process runs one frame synchronously on the calling goroutine and
// publishes the result. It does not need Start; offline tools use it to
// push single frames through the same stages as the live loop.
//
// rf is released before Process returns. The returned sequence number is
// 0 when nothing was published.
func (p *Pipeline) Process(ctx context.Context, rf *frame.RawFrame) (uint64, error) {
	p.startedMu.Lock()
	stopped := p.stopped
	p.startedMu.Unlock()
	if stopped {
		rf.Release()
		return 0, ErrNotRunning
	}

	if err := colorspace.Validate(rf); err != nil {
		rf.Release()
		p.stats.failed.Add(1)
		p.report(err, rf.TraceID)
		return 0, err
	}
	p.stats.submitted.Add(1)
	return p.process(ctx, rf)
}

// process turns one validated frame into a published edge map.
//
// Stages (all under procMu, the single producer context):
//  1. Luma view over the frame (no copy)
//  2. Downscale into scaler memory when a target resolution applies
//  3. Edge detection into a recycled EdgeMap
//  4. Reorientation into a second map when configured
//  5. Publish
//
// The frame is released as soon as detection no longer needs it.
func (p *Pipeline) process(ctx context.Context, rf *frame.RawFrame) (uint64, error) {
	start := time.Now()

	p.procMu.Lock()
	defer p.procMu.Unlock()

	luma, err := p.conv.Luma(rf)
	if err != nil {
		rf.Release()
		p.stats.failed.Add(1)
		p.report(err, rf.TraceID)
		return 0, err
	}

	if w, h, ok := targetSize(p.cfg.TargetResolution, luma.Width, luma.Height); ok {
		luma = p.scaler.scale(luma, w, h)
	}

	edges := p.takeEdges()
	err = p.engine.Detect(ctx, luma, edges)

	ts, traceID := rf.Timestamp, rf.TraceID
	rf.Release()

	if err != nil {
		p.recycle(edges)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.stats.discarded.Add(1)
			slog.Debug("pipeline: in-flight frame discarded", "id", p.id, "trace_id", traceID)
			return 0, err
		}
		p.stats.failed.Add(1)
		p.report(err, traceID)
		return 0, err
	}

	if o := p.cfg.Orientation; !o.IsIdentity() {
		oriented := p.takeEdges()
		frame.Reorient(oriented, edges, o)
		p.recycle(edges)
		edges = oriented
	}

	seq := p.handoff.Publish(edges, ts)
	if seq == 0 {
		// Handoff closed under us.
		p.recycle(edges)
		p.stats.discarded.Add(1)
		return 0, ErrNotRunning
	}

	latency := time.Since(start)
	p.stats.processed.Add(1)
	p.stats.lastLatency.Store(int64(latency))

	slog.Debug("pipeline: frame published",
		"id", p.id,
		"trace_id", traceID,
		"seq", seq,
		"width", edges.Width,
		"height", edges.Height,
		"latency", latency,
	)
	return seq, nil
}

// takeEdges returns a recycled edge map, or a fresh empty one. The engine
// reshapes it to the frame size.
func (p *Pipeline) takeEdges() *frame.EdgeMap {
	p.spareMu.Lock()
	defer p.spareMu.Unlock()

	if n := len(p.spare); n > 0 {
		m := p.spare[n-1]
		p.spare[n-1] = nil
		p.spare = p.spare[:n-1]
		return m
	}
	return &frame.EdgeMap{}
}

// recycle keeps m for reuse. It is the handoff discard hook: the handoff
// only hands back maps no consumer ever received.
func (p *Pipeline) recycle(m *frame.EdgeMap) {
	if m == nil {
		return
	}
	p.spareMu.Lock()
	defer p.spareMu.Unlock()

	if len(p.spare) < maxSpareEdgeMaps {
		p.spare = append(p.spare, m)
	}
}
