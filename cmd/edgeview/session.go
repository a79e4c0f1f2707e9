package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/config"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framedump"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/pipeline"
)

const (
	consumerID    = "renderer"
	webConsumerID = "web"
)

// session is one capture → pipeline chain built from one configuration.
// A configuration change that touches more than the frame rate replaces
// the whole session.
type session struct {
	cfg      *config.Config
	pipe     *pipeline.Pipeline
	cam      *capture.Camera
	consumer *framehandoff.Consumer
	web      *framehandoff.Consumer // nil without a web preview
	started  time.Time

	// fatal receives the capture error when the source gives up.
	fatal chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// captureConfig maps the file settings onto capture.Config.
func captureConfig(c config.CaptureConfig) capture.Config {
	return capture.Config{
		Source:                capture.Source(c.Source),
		Device:                c.Device,
		Width:                 c.Width,
		Height:                c.Height,
		FPS:                   c.FPS,
		MaxReconnectAttempts:  c.MaxReconnectAttempts,
		ReconnectInitialDelay: time.Duration(c.ReconnectInitialDelayMS) * time.Millisecond,
		ReconnectMaxDelay:     time.Duration(c.ReconnectMaxDelayMS) * time.Millisecond,
	}
}

// startSession builds and starts a pipeline and a camera feeding it. When
// rec is non-nil every captured frame is also recorded.
func startSession(parent context.Context, cfg *config.Config, rec *framedump.Writer) (*session, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.New(pc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &session{
		cfg:      cfg,
		pipe:     pipe,
		consumer: pipe.Subscribe(consumerID),
		started:  time.Now(),
		fatal:    make(chan error, 1),
		cancel:   cancel,
	}

	if cfg.Web.Addr != "" {
		s.web = pipe.Subscribe(webConsumerID)
	}

	if err := pipe.Start(ctx); err != nil {
		cancel()
		return nil, err
	}

	var sink capture.FrameSink = pipe
	if rec != nil {
		sink = framedump.NewTee(pipe, rec)
	}
	cam, err := capture.New(captureConfig(cfg.Capture), sink)
	if err != nil {
		cancel()
		pipe.Stop()
		return nil, err
	}
	if err := cam.Start(ctx); err != nil {
		cancel()
		pipe.Stop()
		return nil, err
	}
	s.cam = cam

	s.wg.Add(2)
	go s.forwardUpdates(ctx)
	go s.watchCamera(ctx)

	if cfg.Capture.WarmupS > 0 {
		s.wg.Add(1)
		go s.warmup(ctx, time.Duration(cfg.Capture.WarmupS)*time.Second)
	}

	slog.Info("edgeview: session started",
		"pipeline", pipe.ID(),
		"source", cfg.Capture.Source,
		"resolution", fmt.Sprintf("%dx%d", cfg.Capture.Width, cfg.Capture.Height),
		"backend", pc.Backend,
	)
	return s, nil
}

// forwardUpdates wakes the render loop for every publish.
func (s *session) forwardUpdates(ctx context.Context) {
	defer s.wg.Done()
	updates := s.consumer.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			glfw.PostEmptyEvent()
		}
	}
}

func (s *session) watchCamera(ctx context.Context) {
	defer s.wg.Done()
	select {
	case <-ctx.Done():
	case <-s.cam.Done():
		if err := s.cam.Err(); err != nil {
			s.fatal <- err
			glfw.PostEmptyEvent()
		}
	}
}

func (s *session) warmup(ctx context.Context, d time.Duration) {
	defer s.wg.Done()
	stats, err := s.cam.Warmup(ctx, d)
	switch {
	case errors.Is(err, capture.ErrUnstable):
		slog.Warn("edgeview: capture rate unstable",
			"fps_mean", stats.FPSMean,
			"fps_stddev", stats.FPSStdDev,
			"jitter_max_ms", stats.JitterMax*1000,
		)
	case err != nil && ctx.Err() == nil:
		slog.Warn("edgeview: warmup failed", "error", err)
	case err == nil:
		slog.Info("edgeview: capture rate stable", "fps_mean", stats.FPSMean)
	}
}

// apply tries to take next without a rebuild. It reports false when a
// rebuild is needed. Web and MQTT settings are read once at startup and
// never force a rebuild.
func (s *session) apply(next *config.Config) bool {
	probe := *next
	probe.Capture.FPS = s.cfg.Capture.FPS
	probe.Log = s.cfg.Log
	probe.Window = s.cfg.Window
	probe.StatsIntervalS = s.cfg.StatsIntervalS
	probe.Web = s.cfg.Web
	probe.MQTT = s.cfg.MQTT
	if !reflect.DeepEqual(&probe, s.cfg) {
		return false
	}

	if next.Capture.FPS != s.cfg.Capture.FPS {
		if err := s.cam.SetTargetFPS(next.Capture.FPS); err != nil {
			slog.Warn("edgeview: frame rate change failed, rebuilding session", "error", err)
			return false
		}
	}
	s.cfg = next
	return true
}

// close stops the camera first so no frame is submitted to a stopped
// pipeline, then the pipeline.
func (s *session) close() {
	if err := s.cam.Stop(); err != nil {
		slog.Warn("edgeview: camera stop failed", "error", err)
	}
	s.cancel()
	s.pipe.Stop()
	s.wg.Wait()

	ps := s.pipe.Stats()
	slog.Info("edgeview: session closed",
		"pipeline", ps.ID,
		"uptime", time.Since(s.started).Round(time.Second),
		"processed", ps.Processed,
		"dropped", ps.Dropped,
		"failed", ps.Failed,
	)
}
