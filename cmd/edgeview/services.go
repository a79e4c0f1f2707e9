package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/config"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/telemetry"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/webview"
)

// services are the optional network outputs. They outlive sessions.
type services struct {
	web    *webview.Server
	mqtt   *telemetry.Client
	cancel context.CancelFunc
}

func webConfig(w config.WebConfig) webview.Config {
	return webview.Config{
		Addr:       w.Addr,
		Format:     w.Format,
		MaxFPS:     w.MaxFPS,
		MaxClients: w.MaxClients,
	}
}

func telemetryConfig(m config.MQTTConfig) telemetry.Config {
	return telemetry.Config{
		Broker:       m.Broker,
		ClientID:     m.ClientID,
		StatsTopic:   m.Topics.Stats,
		ControlTopic: m.Topics.Control,
		RepliesTopic: m.Topics.Replies,
		QoS:          m.QoS,
		Interval:     time.Duration(m.IntervalS) * time.Second,
	}
}

// startServices starts what cfg enables. status and setFPS act on the
// current session.
func startServices(ctx context.Context, cfg *config.Config, status func() any, setFPS func(float64) error) (*services, error) {
	ctx, cancel := context.WithCancel(ctx)
	sv := &services{cancel: cancel}

	if cfg.Web.Addr != "" {
		web, err := webview.New(webConfig(cfg.Web), status)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("web preview: %w", err)
		}
		sv.web = web
		go func() {
			if err := web.ListenAndServe(ctx); err != nil {
				slog.Error("edgeview: web preview stopped", "error", err)
			}
		}()
		go web.Run(ctx)
	}

	if cfg.MQTT.Broker != "" {
		client, err := telemetry.New(telemetryConfig(cfg.MQTT), telemetry.Callbacks{
			Status: status,
			SetFPS: setFPS,
		})
		if err == nil {
			err = client.Start(ctx)
		}
		if err != nil {
			cancel()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		sv.mqtt = client
	}
	return sv, nil
}

// attach points the web preview at a new session.
func (sv *services) attach(s *session) {
	if sv.web != nil && s.web != nil {
		sv.web.Attach(s.web)
	}
}

func (sv *services) stop() {
	if sv.mqtt != nil {
		sv.mqtt.Stop()
	}
	sv.cancel()
}
