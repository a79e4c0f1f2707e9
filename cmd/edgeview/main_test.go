package main

import (
	"testing"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/config"
)

func TestCaptureConfig(t *testing.T) {
	cc := config.Default().Capture
	cc.Source = "v4l2"
	cc.ReconnectInitialDelayMS = 250

	got := captureConfig(cc)
	if got.Source != capture.SourceV4L2 || got.Device != "/dev/video0" {
		t.Errorf("source = %q %q", got.Source, got.Device)
	}
	if got.Width != 640 || got.Height != 480 || got.FPS != 30 {
		t.Errorf("geometry = %dx%d@%v", got.Width, got.Height, got.FPS)
	}
	if got.ReconnectInitialDelay != 250*time.Millisecond || got.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("delays = %v / %v", got.ReconnectInitialDelay, got.ReconnectMaxDelay)
	}
}

// TestApplyInPlace validates which changes avoid a session rebuild.
func TestApplyInPlace(t *testing.T) {
	base := config.Default()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		inPlace bool
	}{
		{"unchanged", func(*config.Config) {}, true},
		{"log level", func(c *config.Config) { c.Log.Level = "debug" }, true},
		{"window title", func(c *config.Config) { c.Window.Title = "Edges" }, true},
		{"stats interval", func(c *config.Config) { c.StatsIntervalS = 1 }, true},
		{"web format", func(c *config.Config) { c.Web.Format = "png" }, true},
		{"mqtt broker", func(c *config.Config) { c.MQTT.Broker = "localhost:1883" }, true},
		{"thresholds", func(c *config.Config) { c.Edge.LowThreshold = 10 }, false},
		{"capture size", func(c *config.Config) { c.Capture.Width = 320 }, false},
		{"orientation", func(c *config.Config) { c.Processing.Orientation.Mirror = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := *base
			s := &session{cfg: &cur}
			next := *base
			tt.mutate(&next)

			if got := s.apply(&next); got != tt.inPlace {
				t.Errorf("apply() = %v, want %v", got, tt.inPlace)
			}
			if tt.inPlace && s.cfg != &next {
				t.Error("applied config not adopted")
			}
			if !tt.inPlace && s.cfg != &cur {
				t.Error("rejected config adopted")
			}
		})
	}
}

func TestDropRate(t *testing.T) {
	if got := dropRate(0, 0); got != 0 {
		t.Errorf("dropRate(0, 0) = %v", got)
	}
	if got := dropRate(200, 50); got != 25 {
		t.Errorf("dropRate(200, 50) = %v, want 25", got)
	}
}

func TestStatusReport(t *testing.T) {
	s := snapshot{uptime: 90 * time.Second}
	s.capture.Resolution = "640x480"
	s.capture.Reconnects = 2
	s.pipeline.Processed = 100
	s.pipeline.Dropped = 3
	s.pipeline.Rejected = 1
	s.pipeline.LastLatency = 1500 * time.Microsecond

	st := s.status()
	if st.UptimeS != 90 || st.Resolution != "640x480" || st.Reconnects != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.Processed != 100 || st.Dropped != 4 || st.LatencyMS != 1.5 {
		t.Errorf("pipeline fields = %d/%d/%v", st.Processed, st.Dropped, st.LatencyMS)
	}
	if st.Renderer != "" {
		t.Errorf("Renderer = %q without a surface", st.Renderer)
	}

	s.rendered = true
	s.renderer.DisplayedSeq = 9
	if st := s.status(); st.Renderer == "" || st.Displayed != 9 {
		t.Errorf("rendered status = %+v", st)
	}
}

func TestTelemetryConfig(t *testing.T) {
	mc := config.Default().MQTT
	mc.Broker = "broker:1883"
	got := telemetryConfig(mc)
	if got.Broker != "broker:1883" || got.ControlTopic != "edgeview/control" || got.Interval != 10*time.Second {
		t.Errorf("telemetryConfig() = %+v", got)
	}
}
