package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/renderer"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/renderer/gles"
)

// view maps GLFW window events onto the renderer surface entry points.
// Everything except Stats runs on the main (GL) thread.
type view struct {
	win *glfw.Window
	dev *gles.Device
	rdr atomic.Pointer[renderer.Renderer]

	iconified bool
	failed    bool // last draw failed; logged once until a draw succeeds
}

func newView(win *glfw.Window, dev *gles.Device) *view {
	v := &view{win: win, dev: dev}

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if r := v.rdr.Load(); r != nil && !v.iconified {
			if err := r.OnSurfaceChanged(width, height); err != nil {
				slog.Debug("edgeview: resize ignored", "error", err)
			}
		}
	})

	// A minimised window has no drawable surface.
	win.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		v.iconified = iconified
		r := v.rdr.Load()
		if r == nil {
			return
		}
		if iconified {
			r.OnSurfaceDestroyed()
			return
		}
		v.surfaceUp(r)
	})

	win.SetRefreshCallback(func(*glfw.Window) { v.draw() })

	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	return v
}

// attach swaps in a renderer for a new session's consumer. Sequence
// numbers restart with every session, so the renderer is replaced rather
// than re-pointed.
func (v *view) attach(c *framehandoff.Consumer) {
	if old := v.rdr.Load(); old != nil {
		old.OnSurfaceDestroyed()
	}
	r := renderer.New(v.dev, c)
	v.rdr.Store(r)
	if !v.iconified {
		v.surfaceUp(r)
	}
}

func (v *view) surfaceUp(r *renderer.Renderer) {
	if err := r.OnSurfaceCreated(); err != nil {
		slog.Error("edgeview: surface setup failed, rendering disabled", "error", err)
		return
	}
	w, h := v.win.GetFramebufferSize()
	if err := r.OnSurfaceChanged(w, h); err != nil {
		slog.Warn("edgeview: initial viewport failed", "error", err)
	}
}

func (v *view) draw() {
	r := v.rdr.Load()
	if r == nil {
		return
	}
	if err := r.OnDrawFrame(); err != nil {
		if !v.failed {
			slog.Error("edgeview: draw failed", "error", err)
		}
		v.failed = true
		return
	}
	v.failed = false
	if !v.iconified {
		v.win.SwapBuffers()
	}
}

// stats is safe from any goroutine.
func (v *view) stats() (renderer.Stats, bool) {
	r := v.rdr.Load()
	if r == nil {
		return renderer.Stats{}, false
	}
	return r.Stats(), true
}

func (v *view) close() {
	if r := v.rdr.Load(); r != nil {
		r.OnSurfaceDestroyed()
	}
}
