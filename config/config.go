// Package config loads the edge viewer configuration from YAML.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/edge"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/pipeline"
)

// Config is the complete viewer configuration.
type Config struct {
	Capture        CaptureConfig    `yaml:"capture"`
	Edge           EdgeConfig       `yaml:"edge"`
	Processing     ProcessingConfig `yaml:"processing"`
	Window         WindowConfig     `yaml:"window"`
	Web            WebConfig        `yaml:"web"`
	MQTT           MQTTConfig       `yaml:"mqtt"`
	Log            LogConfig        `yaml:"log"`
	StatsIntervalS int              `yaml:"stats_interval_s"` // 0 disables the stats reporter
}

// CaptureConfig selects the camera source.
type CaptureConfig struct {
	Source string  `yaml:"source"` // test, v4l2
	Device string  `yaml:"device"` // v4l2 device node
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`

	MaxReconnectAttempts    int `yaml:"max_reconnect_attempts"`
	ReconnectInitialDelayMS int `yaml:"reconnect_initial_delay_ms"`
	ReconnectMaxDelayMS     int `yaml:"reconnect_max_delay_ms"`
	WarmupS                 int `yaml:"warmup_s"` // 0 skips warm-up
}

// EdgeConfig holds the detector parameters of a session.
type EdgeConfig struct {
	KernelSize    int    `yaml:"kernel_size"`
	LowThreshold  uint8  `yaml:"low_threshold"`
	HighThreshold uint8  `yaml:"high_threshold"`
	Output        string `yaml:"output"`  // binary, magnitude
	Backend       string `yaml:"backend"` // native, opencv
}

// ProcessingConfig holds the pipeline instance settings.
type ProcessingConfig struct {
	TargetResolution    pipeline.Resolution `yaml:"target_resolution"`
	Orientation         frame.Orientation   `yaml:"orientation"`
	IngestPolicy        string              `yaml:"ingest_policy"` // replace-pending, reject-when-busy
	MaxRetainedSlots    int                 `yaml:"max_retained_slots"`
	MaxOutstandingBytes int                 `yaml:"max_outstanding_bytes"`
}

// WindowConfig sizes the host window.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	VSync  bool   `yaml:"vsync"`
}

// WebConfig enables the browser preview. An empty Addr disables it.
type WebConfig struct {
	Addr       string `yaml:"addr"`   // e.g. ":8080"
	Format     string `yaml:"format"` // webp, png
	MaxFPS     int    `yaml:"max_fps"`
	MaxClients int    `yaml:"max_clients"`
}

// MQTTConfig enables stats publishing and remote control. An empty Broker
// disables both.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port
	ClientID string `yaml:"client_id"`
	Topics   struct {
		Stats   string `yaml:"stats"`
		Control string `yaml:"control"`
		Replies string `yaml:"replies"`
	} `yaml:"topics"`
	QoS       byte `yaml:"qos"`
	IntervalS int  `yaml:"interval_s"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	pc := pipeline.DefaultConfig()
	return &Config{
		Capture: CaptureConfig{
			Source:                  "test",
			Device:                  "/dev/video0",
			Width:                   640,
			Height:                  480,
			FPS:                     30,
			MaxReconnectAttempts:    5,
			ReconnectInitialDelayMS: 1000,
			ReconnectMaxDelayMS:     30000,
		},
		Edge: EdgeConfig{
			KernelSize:    pc.GaussianKernelSize,
			LowThreshold:  pc.LowThreshold,
			HighThreshold: pc.HighThreshold,
			Output:        pc.Output.String(),
			Backend:       pc.Backend,
		},
		Processing: ProcessingConfig{
			IngestPolicy:     pc.IngestPolicy.String(),
			MaxRetainedSlots: pc.MaxRetainedSlots,
		},
		Window: WindowConfig{
			Title:  "Edge Viewer",
			Width:  960,
			Height: 720,
			VSync:  true,
		},
		Web: WebConfig{
			Format:     "webp",
			MaxFPS:     15,
			MaxClients: 8,
		},
		MQTT: defaultMQTT(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		StatsIntervalS: 10,
	}
}

func defaultMQTT() MQTTConfig {
	m := MQTTConfig{ClientID: "edgeview", QoS: 0, IntervalS: 10}
	m.Topics.Stats = "edgeview/stats"
	m.Topics.Control = "edgeview/control"
	m.Topics.Replies = "edgeview/replies"
	return m
}

// Load reads and parses a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Pipeline maps the file settings onto a pipeline.Config.
func (c *Config) Pipeline() (pipeline.Config, error) {
	out, err := edge.ParseOutput(c.Edge.Output)
	if err != nil {
		return pipeline.Config{}, err
	}
	policy, err := pipeline.ParseIngestPolicy(c.Processing.IngestPolicy)
	if err != nil {
		return pipeline.Config{}, err
	}

	pc := pipeline.Config{
		GaussianKernelSize:  c.Edge.KernelSize,
		LowThreshold:        c.Edge.LowThreshold,
		HighThreshold:       c.Edge.HighThreshold,
		Output:              out,
		TargetResolution:    c.Processing.TargetResolution,
		Orientation:         c.Processing.Orientation,
		IngestPolicy:        policy,
		MaxRetainedSlots:    c.Processing.MaxRetainedSlots,
		MaxOutstandingBytes: c.Processing.MaxOutstandingBytes,
		Backend:             c.Edge.Backend,
	}
	return pc, pc.Validate()
}

// SlogLevel returns the configured log level (info when unset).
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
