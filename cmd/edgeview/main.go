// Command edgeview shows live camera edges in a GLFW window.
//
// Usage:
//
//	edgeview [-config edgeview.yaml] [-record session.edgd] [-debug]
//
// The configuration file is watched: a frame rate change is applied to
// the running camera, any other change rebuilds the capture session.
//
// With web.addr set the edges are also served to browsers, and with
// mqtt.broker set stats are published and remote set_fps commands are
// accepted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/config"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framedump"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/renderer/gles"
)

const version = "v0.1.0"

// idleWait bounds how long the event loop sleeps without a publish.
const idleWait = 0.5 // seconds

func init() {
	// GLFW and the GL context live on the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file (watched for changes)")
	recordPath := flag.String("record", "", "Record captured frames to this file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgeview %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	level := new(slog.LevelVar)
	setupLogging(cfg.Log, level, *debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *framedump.Writer
	if *recordPath != "" {
		f, err := os.Create(*recordPath)
		if err != nil {
			slog.Error("edgeview: cannot create recording", "path", *recordPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		if rec, err = framedump.NewWriter(f); err != nil {
			slog.Error("edgeview: cannot start recording", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rec.Flush(); err != nil {
				slog.Error("edgeview: recording flush failed", "error", err)
			}
			slog.Info("edgeview: recording closed", "path", *recordPath, "frames", rec.Frames())
		}()
	}

	err := run(ctx, *configPath, cfg, rec, func(next *config.Config) {
		if !*debug {
			level.Set(next.SlogLevel())
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("edgeview: stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogging(lc config.LogConfig, level *slog.LevelVar, debug bool) {
	level.Set((&config.Config{Log: lc}).SlogLevel())
	if debug {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// run owns the window and the event loop. It returns when the window is
// closed, ctx ends or the camera gives up.
func run(ctx context.Context, configPath string, cfg *config.Config, rec *framedump.Writer, onReload func(*config.Config)) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLESAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 0)
	win, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer win.Destroy()
	win.MakeContextCurrent()
	if cfg.Window.VSync {
		glfw.SwapInterval(1)
	}

	dev, err := gles.New()
	if err != nil {
		return err
	}
	dev.SetClearColor(0, 0, 0)
	slog.Info("edgeview: GL context ready", "version", dev.Version())

	v := newView(win, dev)
	defer v.close()

	var current atomic.Pointer[session]
	sess, err := startSession(ctx, cfg, rec)
	if err != nil {
		return err
	}
	current.Store(sess)
	defer func() { current.Load().close() }()
	v.attach(sess.consumer)

	reloads := make(chan *config.Config, 1)
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, cfg, func(next *config.Config) {
				// Keep only the newest pending change.
				select {
				case <-reloads:
				default:
				}
				reloads <- next
				glfw.PostEmptyEvent()
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("edgeview: config watch stopped", "error", err)
			}
		}()
	}

	take := func() (snapshot, bool) {
		s := current.Load()
		if s == nil {
			return snapshot{}, false
		}
		rs, ok := v.stats()
		return snapshot{
			uptime:   time.Since(s.started),
			capture:  s.cam.Stats(),
			pipeline: s.pipe.Stats(),
			renderer: rs,
			rendered: ok,
		}, true
	}
	if cfg.StatsIntervalS > 0 {
		go reportStats(ctx, time.Duration(cfg.StatsIntervalS)*time.Second, take)
	}

	sv, err := startServices(ctx, cfg,
		func() any {
			snap, _ := take()
			return snap.status()
		},
		func(fps float64) error {
			return current.Load().cam.SetTargetFPS(fps)
		},
	)
	if err != nil {
		return err
	}
	defer sv.stop()
	sv.attach(sess)

	go func() {
		<-ctx.Done()
		glfw.PostEmptyEvent()
	}()

	for !win.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sess.fatal:
			return err
		case next := <-reloads:
			onReload(next)
			win.SetTitle(next.Window.Title)
			if next.Web != sess.cfg.Web || next.MQTT != sess.cfg.MQTT {
				slog.Warn("edgeview: web and mqtt changes take effect at restart")
			}
			if sess.apply(next) {
				slog.Info("edgeview: configuration applied in place", "fps", next.Capture.FPS)
				break
			}
			if sess, err = rebuild(ctx, sess, next, rec); err != nil {
				return err
			}
			current.Store(sess)
			v.attach(sess.consumer)
			sv.attach(sess)
		default:
		}

		v.draw()
		glfw.WaitEventsTimeout(idleWait)
	}
	return nil
}

// rebuild replaces old with a session for next. The old camera is stopped
// first so the device is free. If next cannot start, the previous
// configuration is started again.
func rebuild(ctx context.Context, old *session, next *config.Config, rec *framedump.Writer) (*session, error) {
	slog.Info("edgeview: configuration changed, rebuilding session")
	prev := old.cfg
	old.close()

	s, err := startSession(ctx, next, rec)
	if err == nil {
		return s, nil
	}
	slog.Error("edgeview: new configuration failed, restoring previous", "error", err)
	return startSession(ctx, prev, rec)
}
