// Package pipeline wires the core into one explicit instance:
//
//	AcquireFrame → Submit ─▶ inbox (1 pending slot) ─▶ processLoop
//	                                                    │ Luma (zero copy)
//	                                                    │ downscale (optional)
//	                                                    │ edge.Detect
//	                                                    │ Reorient (optional)
//	                                                    ▼
//	                                           framehandoff.Publish ─▶ consumers
//
// Philosophy: "Drop frames, never queue." A frame arriving while another is
// processed either replaces the pending one or is rejected, depending on the
// IngestPolicy. Instances share nothing: tests may build and tear down as
// many as they like.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/colorspace"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/edge"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framepool"
)

var (
	// ErrBusy reports a frame rejected under RejectWhenBusy.
	ErrBusy = errors.New("pipeline: busy, frame dropped")

	// ErrNotRunning reports Submit before Start or after Stop.
	ErrNotRunning = errors.New("pipeline: not running")
)

// maxSpareEdgeMaps bounds recycled edge maps kept for reuse.
const maxSpareEdgeMaps = 3

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOnError receives every frame-level failure (InvalidFormat,
// OutOfMemory, engine errors). Called from the producer context.
func WithOnError(fn func(error)) Option {
	return func(p *Pipeline) {
		p.onError = fn
	}
}

// WithHandoffOptions passes options to the internal frame handoff.
func WithHandoffOptions(opts ...framehandoff.Option) Option {
	return func(p *Pipeline) {
		p.handoffOpts = append(p.handoffOpts, opts...)
	}
}

// Pipeline is one edge preview session.
//
// Goroutine topology:
//   - 1 fixed: processLoop (spawned by Start, stopped by Stop)
//   - N external: producers calling Submit, consumers reading the handoff
//
// Thread-safety: all exported methods safe for concurrent use.
type Pipeline struct {
	id  string
	cfg Config

	pool    *framepool.Pool
	handoff framehandoff.Handoff

	// --- Producer context (guarded by procMu) ---

	procMu sync.Mutex
	conv   *colorspace.Converter
	engine edge.Backend
	scaler scaler

	// --- Inbox ---

	inboxMu   sync.Mutex
	inboxCond *sync.Cond
	pending   *frame.RawFrame
	busy      bool
	closed    bool // set by Stop; Submit re-checks it under inboxMu

	// --- Edge map recycling ---

	spareMu sync.Mutex
	spare   []*frame.EdgeMap

	// --- Lifecycle ---

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedMu sync.Mutex
	started   bool
	stopped   bool

	onError     func(error)
	handoffOpts []framehandoff.Option

	stats counters
}

// New validates cfg and builds an idle pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid config: %w", err)
	}

	engine, err := edge.NewBackend(cfg.Backend, cfg.EdgeConfig())
	if err != nil {
		return nil, fmt.Errorf("pipeline: edge backend: %w", err)
	}

	p := &Pipeline{
		id:     uuid.NewString(),
		cfg:    cfg,
		conv:   colorspace.NewConverter(),
		engine: engine,
	}
	p.inboxCond = sync.NewCond(&p.inboxMu)

	for _, opt := range opts {
		opt(p)
	}

	poolOpts := []framepool.Option{framepool.WithMaxRetained(cfg.MaxRetainedSlots)}
	if cfg.MaxOutstandingBytes > 0 {
		poolOpts = append(poolOpts, framepool.WithMaxOutstandingBytes(cfg.MaxOutstandingBytes))
	}
	p.pool = framepool.New(poolOpts...)

	hopts := append([]framehandoff.Option{framehandoff.WithDiscardHook(p.recycle)}, p.handoffOpts...)
	p.handoff = framehandoff.New(hopts...)

	slog.Info("pipeline: created",
		"id", p.id,
		"backend", engine.Name(),
		"kernel", cfg.GaussianKernelSize,
		"low", cfg.LowThreshold,
		"high", cfg.HighThreshold,
		"policy", cfg.IngestPolicy,
	)
	return p, nil
}

// ID returns the instance identifier.
func (p *Pipeline) ID() string { return p.id }

// Config returns the session configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Handoff exposes the frame handoff for consumers.
func (p *Pipeline) Handoff() framehandoff.Handoff { return p.handoff }

// Subscribe registers a consumer on the handoff.
func (p *Pipeline) Subscribe(id string) *framehandoff.Consumer {
	return p.handoff.Subscribe(id)
}

// Start spawns the processing loop. It returns immediately.
//
// The loop runs until Stop or ctx cancellation. A pipeline cannot be
// restarted after Stop; hosts build a new instance per session.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startedMu.Lock()
	defer p.startedMu.Unlock()

	if p.stopped {
		return ErrNotRunning
	}
	if p.started {
		return fmt.Errorf("pipeline: already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	// Wake the loop when the parent context ends.
	go func() {
		<-p.ctx.Done()
		p.inboxMu.Lock()
		p.inboxCond.Broadcast()
		p.inboxMu.Unlock()
	}()

	p.wg.Add(1)
	go p.processLoop()

	slog.Info("pipeline: started", "id", p.id)
	return nil
}

// Stop tears the session down.
//
// Behavior:
//  1. Stops ingestion (Submit returns ErrNotRunning)
//  2. Cancels in-flight processing (that frame is discarded)
//  3. Releases the pending frame
//  4. Drains the pool and closes the handoff
//
// Idempotent.
func (p *Pipeline) Stop() {
	p.startedMu.Lock()
	if p.stopped {
		p.startedMu.Unlock()
		return
	}
	p.stopped = true
	wasStarted := p.started
	p.startedMu.Unlock()

	if wasStarted {
		p.cancel()
		p.inboxMu.Lock()
		p.inboxCond.Broadcast()
		p.inboxMu.Unlock()
		p.wg.Wait()
	}

	p.inboxMu.Lock()
	pending := p.pending
	p.pending = nil
	p.closed = true
	p.inboxMu.Unlock()
	if pending != nil {
		pending.Release()
		p.stats.discarded.Add(1)
	}

	p.pool.Drain()
	p.handoff.Close()

	slog.Info("pipeline: stopped", "id", p.id)
}

func (p *Pipeline) running() bool {
	p.startedMu.Lock()
	defer p.startedMu.Unlock()
	return p.started && !p.stopped && p.ctx.Err() == nil
}

// AcquireFrame returns a pool-backed RawFrame for the producer to fill.
// The frame carries a fresh TraceID and the current time as Timestamp.
func (p *Pipeline) AcquireFrame(width, height int, f frame.Format) (*frame.RawFrame, error) {
	rf, err := p.pool.AcquireFrame(width, height, f)
	if err != nil {
		p.stats.failed.Add(1)
		p.report(err, "")
		return nil, err
	}
	rf.TraceID = uuid.NewString()
	return rf, nil
}

// Submit hands rf to the processing loop. Ownership transfers to the
// pipeline on every path: rf is released even when an error is returned.
//
// Returns:
//   - ErrNotRunning before Start or after Stop
//   - frame.ErrInvalidFormat for a malformed frame
//   - ErrBusy under RejectWhenBusy while a frame is in flight
func (p *Pipeline) Submit(rf *frame.RawFrame) error {
	if !p.running() {
		rf.Release()
		return ErrNotRunning
	}

	if err := colorspace.Validate(rf); err != nil {
		rf.Release()
		p.stats.failed.Add(1)
		p.report(err, rf.TraceID)
		return err
	}

	p.inboxMu.Lock()
	switch {
	case p.closed:
		p.inboxMu.Unlock()
		rf.Release()
		return ErrNotRunning

	case p.cfg.IngestPolicy == RejectWhenBusy && (p.busy || p.pending != nil):
		p.inboxMu.Unlock()
		rf.Release()
		p.stats.rejected.Add(1)
		slog.Debug("pipeline: frame rejected, busy", "id", p.id, "trace_id", rf.TraceID)
		return ErrBusy

	case p.pending != nil:
		old := p.pending
		p.pending = rf
		p.inboxCond.Signal()
		p.inboxMu.Unlock()
		p.stats.submitted.Add(1)

		old.Release()
		p.stats.dropped.Add(1)
		slog.Debug("pipeline: pending frame replaced", "id", p.id, "dropped_trace_id", old.TraceID)
		return nil

	default:
		p.pending = rf
		p.inboxCond.Signal()
		p.inboxMu.Unlock()
		p.stats.submitted.Add(1)
		return nil
	}
}

// SubmitNV21 copies a tightly packed NV21 buffer into a pool frame and
// submits it.
func (p *Pipeline) SubmitNV21(data []byte, width, height int, ts time.Time) error {
	size, err := framepool.FrameSize(width, height, frame.FormatNV21)
	if err != nil {
		return err
	}
	if len(data) < size {
		err := fmt.Errorf("pipeline: NV21 buffer %d bytes, need %d: %w", len(data), size, frame.ErrInvalidFormat)
		p.stats.failed.Add(1)
		p.report(err, "")
		return err
	}

	rf, err := p.AcquireFrame(width, height, frame.FormatNV21)
	if err != nil {
		return err
	}

	ySize := width * height
	copy(rf.Planes[0].Data, data[:ySize])
	copy(rf.Planes[1].Data, data[ySize:size])
	if !ts.IsZero() {
		rf.Timestamp = ts
	}
	return p.Submit(rf)
}

// processLoop consumes the inbox until shutdown.
//
// Algorithm:
//  1. Wait for a pending frame (sync.Cond, no busy-wait)
//  2. Take it, mark busy
//  3. Process outside the inbox lock (Submit never waits on processing)
//  4. Clear busy, repeat
func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	for {
		p.inboxMu.Lock()
		for p.pending == nil {
			if p.ctx.Err() != nil {
				p.inboxMu.Unlock()
				return
			}
			p.inboxCond.Wait()
		}
		if p.ctx.Err() != nil {
			p.inboxMu.Unlock()
			return
		}

		rf := p.pending
		p.pending = nil
		p.busy = true
		p.inboxMu.Unlock()

		p.process(p.ctx, rf)

		p.inboxMu.Lock()
		p.busy = false
		p.inboxMu.Unlock()
	}
}

// report logs a frame-level failure and forwards it to the OnError hook.
func (p *Pipeline) report(err error, traceID string) {
	slog.Warn("pipeline: frame dropped", "id", p.id, "trace_id", traceID, "error", err)
	if p.onError != nil {
		p.onError(err)
	}
}
