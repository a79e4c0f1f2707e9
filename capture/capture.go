// Package capture feeds camera frames into a FrameSink using GStreamer.
//
// The capture graph delivers NV21 at the configured size and rate. Every
// appsink sample is copied into a pool frame obtained from the sink and
// submitted; the sink's busy policy decides what happens when processing
// lags. A failing source is restarted with exponential backoff.
//
//	v4l2src|videotestsrc → videoconvert → videoscale → videorate
//	    → capsfilter(NV21) → appsink ─OnNewSample─▶ FrameSink.Submit
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture/internal/fault"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture/internal/gstsrc"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture/internal/reconnect"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture/internal/warmup"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

var (
	// ErrNotStarted is returned by operations that need a running camera.
	ErrNotStarted = errors.New("capture: camera not started")
	// ErrUnstable is returned by Warmup when the measured rate is unstable.
	ErrUnstable = errors.New("capture: frame rate unstable")
)

// Source selects the GStreamer source element.
type Source string

const (
	SourceTest Source = "test" // videotestsrc
	SourceV4L2 Source = "v4l2" // v4l2src
)

const (
	minFPS = 0.1
	maxFPS = 120
)

// Config describes a capture session.
type Config struct {
	Source Source
	Device string // v4l2 device node
	Width  int
	Height int
	FPS    float64

	// Zero values select reconnect.DefaultConfig.
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// FrameSink receives captured frames. *pipeline.Pipeline satisfies it.
type FrameSink interface {
	AcquireFrame(width, height int, f frame.Format) (*frame.RawFrame, error)
	Submit(rf *frame.RawFrame) error
}

// WarmupStats is the result of Warmup.
type WarmupStats = warmup.Stats

// Stats is a snapshot of capture counters.
type Stats struct {
	FramesCaptured uint64
	Submitted      uint64
	Rejected       uint64 // refused by the sink or no frame memory
	CopyErrors     uint64
	BytesRead      uint64
	DropRate       float64 // percent of captured frames not submitted
	FPSTarget      float64
	FPSReal        float64
	LatencyMS      int64 // since the last captured frame
	Resolution     string
	Reconnects     uint32
	IsConnected    bool
	Errors         fault.Counters
}

// Camera runs one capture graph.
type Camera struct {
	cfg          Config
	sink         FrameSink
	reconnectCfg reconnect.Config

	mu       sync.RWMutex
	elements *gstsrc.Elements
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  time.Time
	done     chan struct{}
	err      error

	counters  gstsrc.Counters
	state     reconnect.State
	connected atomic.Bool
	lastFrame atomic.Int64 // unix nanos

	errMu  sync.Mutex
	errors fault.Counters

	recMu    sync.Mutex
	recorder warmup.Recorder
}

// New validates cfg and checks that GStreamer provides the source element.
func New(cfg Config, sink FrameSink) (*Camera, error) {
	if sink == nil {
		return nil, fmt.Errorf("capture: sink is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := gstsrc.CheckAvailable(string(cfg.Source)); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available: %w", err)
	}

	c := &Camera{
		cfg:          cfg,
		sink:         sink,
		reconnectCfg: cfg.reconnectConfig(),
	}

	slog.Info("capture: camera created",
		"source", cfg.Source,
		"device", cfg.Device,
		"resolution", c.resolution(),
		"target_fps", cfg.FPS,
	)
	return c, nil
}

func (cfg Config) validate() error {
	switch cfg.Source {
	case SourceTest:
	case SourceV4L2:
		if cfg.Device == "" {
			return fmt.Errorf("capture: v4l2 source requires a device")
		}
	default:
		return fmt.Errorf("capture: unknown source %q", cfg.Source)
	}
	if cfg.Width < 2 || cfg.Height < 2 {
		return fmt.Errorf("capture: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < minFPS || cfg.FPS > maxFPS {
		return fmt.Errorf("capture: invalid FPS %.2f (must be %.1f-%d)", cfg.FPS, minFPS, maxFPS)
	}
	if cfg.MaxReconnectAttempts < 0 {
		return fmt.Errorf("capture: negative reconnect attempts %d", cfg.MaxReconnectAttempts)
	}
	return nil
}

func (cfg Config) reconnectConfig() reconnect.Config {
	rc := reconnect.DefaultConfig()
	if cfg.MaxReconnectAttempts > 0 {
		rc.MaxRetries = cfg.MaxReconnectAttempts
	}
	if cfg.ReconnectInitialDelay > 0 {
		rc.InitialDelay = cfg.ReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		rc.MaxDelay = cfg.ReconnectMaxDelay
	}
	rc.MaxDelay = max(rc.MaxDelay, rc.InitialDelay)
	return rc
}

func (c *Camera) resolution() string {
	return fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height)
}

// Start builds the graph, sets it PLAYING and returns. Frames arrive
// asynchronously. Done is closed when the source gives up or ctx ends.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("capture: camera already started")
	}

	elements, err := gstsrc.CreatePipeline(gstsrc.PipelineConfig{
		Source: string(c.cfg.Source),
		Device: c.cfg.Device,
		Width:  c.cfg.Width,
		Height: c.cfg.Height,
		FPS:    c.cfg.FPS,
	})
	if err != nil {
		return fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	cc := &gstsrc.CallbackContext{
		Width:  c.cfg.Width,
		Height: c.cfg.Height,
		Acquire: func(w, h int) (*frame.RawFrame, error) {
			return c.sink.AcquireFrame(w, h, frame.FormatNV21)
		},
		Submit:   c.sink.Submit,
		Observe:  c.observe,
		Counters: &c.counters,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return gstsrc.OnNewSample(s, cc)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		gstsrc.DestroyPipeline(elements)
		return fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	c.elements = elements
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = time.Now()
	c.done = make(chan struct{})
	c.err = nil

	c.wg.Add(1)
	go c.run(c.ctx, elements, c.done)

	slog.Info("capture: camera started",
		"source", c.cfg.Source,
		"resolution", c.resolution(),
		"target_fps", c.cfg.FPS,
	)
	return nil
}

// Done is closed when the capture loop exits. Nil before Start.
func (c *Camera) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Err returns why the capture loop exited, or nil while running or after
// a clean Stop.
func (c *Camera) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Camera) run(ctx context.Context, el *gstsrc.Elements, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	err := reconnect.Run(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			if err := gstsrc.Restart(el); err != nil {
				return err
			}
			slog.Info("capture: pipeline restarted", "attempt", attempt)
		}
		return c.monitor(ctx, el)
	}, c.reconnectCfg, &c.state)
	c.connected.Store(false)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("capture: source stopped after reconnection failure",
			"error", err,
			"source", c.cfg.Source,
			"resolution", c.resolution(),
			"uptime", time.Since(c.started),
			"frames_captured", c.counters.Captured.Load(),
			"reconnects", c.state.Reconnects(),
		)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}
}

// monitor polls the bus until an error (restart) or ctx ends (nil).
func (c *Camera) monitor(ctx context.Context, el *gstsrc.Elements) error {
	bus := el.Pipeline.GetPipelineBus()
	name := el.Pipeline.GetName()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			c.connected.Store(false)
			c.countError(fault.Device)
			slog.Info("capture: end of stream received",
				"uptime", time.Since(c.started),
				"frames_captured", c.counters.Captured.Load(),
			)
			return fmt.Errorf("end of stream")

		case gst.MessageError:
			c.connected.Store(false)
			gerr := msg.ParseError()
			category := fault.Classify(gerr.Error(), gerr.DebugString())
			c.countError(category)

			slog.Error("capture: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"source", c.cfg.Source,
				"frames_captured", c.counters.Captured.Load(),
				"reconnects", c.state.Reconnects(),
			)
			return fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() != name {
				continue
			}
			old, cur := msg.ParseStateChanged()
			slog.Debug("capture: pipeline state changed", "from", old, "to", cur)
			if cur == gst.StatePlaying {
				c.state.Reset()
				c.connected.Store(true)
			}
		}
	}
}

func (c *Camera) countError(cat fault.Category) {
	c.errMu.Lock()
	c.errors.Add(cat)
	c.errMu.Unlock()
}

func (c *Camera) observe(t time.Time) {
	c.lastFrame.Store(t.UnixNano())
	c.recMu.Lock()
	c.recorder.Observe(t)
	c.recMu.Unlock()
}

// Stop cancels the capture loop, waits up to 3s and tears the graph down.
// Idempotent. The camera can be started again.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	slog.Info("capture: stopping camera")
	c.cancel()
	c.mu.Unlock()

	// run takes mu to record its error, so wait without holding it.
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("capture: stop timeout exceeded, capture loop may still be running")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.elements != nil {
		if err = gstsrc.DestroyPipeline(c.elements); err != nil {
			slog.Error("capture: failed to destroy pipeline", "error", err)
		}
		c.elements = nil
	}
	c.connected.Store(false)

	slog.Info("capture: camera stopped",
		"frames_captured", c.counters.Captured.Load(),
		"submitted", c.counters.Submitted.Load(),
		"reconnects", c.state.Reconnects(),
		"uptime", time.Since(c.started),
	)

	c.cancel = nil
	c.ctx = nil
	return err
}

// Stats returns a snapshot. Safe from any goroutine.
func (c *Camera) Stats() Stats {
	c.mu.RLock()
	started, fps := c.started, c.cfg.FPS
	c.mu.RUnlock()

	s := Stats{
		FramesCaptured: c.counters.Captured.Load(),
		Submitted:      c.counters.Submitted.Load(),
		Rejected:       c.counters.Rejected.Load(),
		CopyErrors:     c.counters.CopyErrors.Load(),
		BytesRead:      c.counters.BytesRead.Load(),
		FPSTarget:      fps,
		Resolution:     c.resolution(),
		Reconnects:     c.state.Reconnects(),
		IsConnected:    c.connected.Load(),
	}
	if !started.IsZero() {
		if up := time.Since(started).Seconds(); up > 0 {
			s.FPSReal = float64(s.Submitted) / up
		}
	}
	if s.FramesCaptured > 0 {
		s.DropRate = float64(s.FramesCaptured-min(s.Submitted, s.FramesCaptured)) / float64(s.FramesCaptured) * 100
	}
	if last := c.lastFrame.Load(); last != 0 {
		s.LatencyMS = time.Since(time.Unix(0, last)).Milliseconds()
	}
	c.errMu.Lock()
	s.Errors = c.errors
	c.errMu.Unlock()
	return s
}

// SetTargetFPS changes the capture rate by swapping the capsfilter caps.
// On failure the previous rate is restored.
func (c *Camera) SetTargetFPS(fps float64) error {
	if fps < minFPS || fps > maxFPS {
		return fmt.Errorf("capture: invalid FPS %.2f (must be %.1f-%d)", fps, minFPS, maxFPS)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.elements == nil {
		return ErrNotStarted
	}

	old := c.cfg.FPS
	if err := gstsrc.UpdateFramerateCaps(c.elements.CapsFilter, c.cfg.Width, c.cfg.Height, fps); err != nil {
		slog.Warn("capture: FPS update failed, rolling back", "error", err, "old_fps", old, "failed_fps", fps)
		if rbErr := gstsrc.UpdateFramerateCaps(c.elements.CapsFilter, c.cfg.Width, c.cfg.Height, old); rbErr != nil {
			slog.Error("capture: rollback failed", "rollback_error", rbErr, "original_error", err)
		}
		return fmt.Errorf("capture: failed to update FPS: %w", err)
	}

	c.cfg.FPS = fps
	slog.Info("capture: target FPS updated", "old_fps", old, "new_fps", fps)
	return nil
}

// Warmup records frame arrivals for d and reports rate stability.
//
// Frames keep flowing to the sink while measuring. An unstable source
// returns its stats together with ErrUnstable so the caller can decide.
func (c *Camera) Warmup(ctx context.Context, d time.Duration) (*WarmupStats, error) {
	c.mu.RLock()
	running := c.cancel != nil
	c.mu.RUnlock()
	if !running {
		return nil, ErrNotStarted
	}

	slog.Info("capture: starting warmup", "duration", d)

	c.recMu.Lock()
	c.recorder.Arm()
	c.recMu.Unlock()

	begin := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	var cancelled error
	select {
	case <-timer.C:
	case <-ctx.Done():
		cancelled = ctx.Err()
	}

	c.recMu.Lock()
	arrivals := c.recorder.Disarm()
	c.recMu.Unlock()

	if cancelled != nil {
		return nil, cancelled
	}
	if len(arrivals) < 2 {
		return nil, fmt.Errorf("capture: not enough frames during warmup (got %d, need at least 2)", len(arrivals))
	}

	stats := warmup.Calculate(arrivals, time.Since(begin))
	slog.Info("capture: warmup complete",
		"frames", stats.FramesReceived,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean_ms", fmt.Sprintf("%.1f", stats.JitterMean*1000),
		"stable", stats.IsStable,
	)
	if !stats.IsStable {
		return &stats, fmt.Errorf("%w (mean=%.2f Hz, stddev=%.2f)", ErrUnstable, stats.FPSMean, stats.FPSStdDev)
	}
	return &stats, nil
}
