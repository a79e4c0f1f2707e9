package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration and fills defaults that depend on
// other fields.
func Validate(cfg *Config) error {
	switch cfg.Capture.Source {
	case "test":
	case "v4l2":
		if cfg.Capture.Device == "" {
			return fmt.Errorf("capture.device is required for the v4l2 source")
		}
	default:
		return fmt.Errorf("capture.source %q unknown (must be 'test' or 'v4l2')", cfg.Capture.Source)
	}
	if cfg.Capture.Width < 2 || cfg.Capture.Height < 2 {
		return fmt.Errorf("capture size %dx%d too small", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Capture.FPS < 0.1 || cfg.Capture.FPS > 120 {
		return fmt.Errorf("capture.fps %.2f out of range (0.1-120)", cfg.Capture.FPS)
	}
	if cfg.Capture.MaxReconnectAttempts < 0 {
		return fmt.Errorf("capture.max_reconnect_attempts must be >= 0")
	}
	if cfg.Capture.ReconnectMaxDelayMS < cfg.Capture.ReconnectInitialDelayMS {
		cfg.Capture.ReconnectMaxDelayMS = cfg.Capture.ReconnectInitialDelayMS
	}

	if _, err := cfg.Pipeline(); err != nil {
		return fmt.Errorf("edge/processing: %w", err)
	}

	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d invalid", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Window.Title == "" {
		cfg.Window.Title = "Edge Viewer"
	}

	switch strings.ToLower(cfg.Web.Format) {
	case "webp", "png":
	default:
		return fmt.Errorf("web.format %q unknown (must be 'webp' or 'png')", cfg.Web.Format)
	}
	if cfg.Web.MaxFPS < 1 || cfg.Web.MaxFPS > 60 {
		return fmt.Errorf("web.max_fps %d out of range (1-60)", cfg.Web.MaxFPS)
	}
	if cfg.Web.MaxClients < 1 {
		return fmt.Errorf("web.max_clients must be >= 1")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required when a broker is set")
		}
		if cfg.MQTT.Topics.Stats == "" || cfg.MQTT.Topics.Control == "" || cfg.MQTT.Topics.Replies == "" {
			return fmt.Errorf("mqtt.topics must name stats, control and replies")
		}
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d invalid (0-2)", cfg.MQTT.QoS)
	}
	if cfg.MQTT.IntervalS < 1 {
		return fmt.Errorf("mqtt.interval_s must be >= 1")
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown (must be 'text' or 'json')", cfg.Log.Format)
	}

	if cfg.StatsIntervalS < 0 {
		return fmt.Errorf("stats_interval_s must be >= 0")
	}
	return nil
}
