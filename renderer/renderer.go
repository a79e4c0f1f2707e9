// Package renderer displays the latest edge map through a host-supplied
// graphics Device.
//
// State machine:
//
//	Uninitialized ──OnSurfaceCreated──▶ SurfaceReady ──OnDrawFrame──▶ Rendering
//	                                          │                         ▲  │
//	                                          └──OnSurfaceChanged──▶ SurfaceChanged
//	any ──OnSurfaceDestroyed──▶ SurfaceDestroyed ──(resources freed)──▶ Uninitialized
//
// The host calls the four entry points from its render thread. The CPU
// pipeline keeps publishing while rendering is unavailable; after a surface
// re-creation the last frame seen is uploaded again immediately.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
)

// ErrInvalidState reports an entry point called in a state that does not
// accept it.
var ErrInvalidState = errors.New("renderer: invalid state")

// State is a renderer lifecycle state.
type State int

const (
	Uninitialized State = iota
	SurfaceReady
	Rendering
	SurfaceChanged
	SurfaceDestroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case SurfaceReady:
		return "surface-ready"
	case Rendering:
		return "rendering"
	case SurfaceChanged:
		return "surface-changed"
	case SurfaceDestroyed:
		return "surface-destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source yields new frames; *framehandoff.Consumer implements it.
type Source interface {
	ConsumeLatest() (*framehandoff.PublishedFrame, bool)
}

// Stats is a snapshot of renderer activity.
type Stats struct {
	State         State
	Uploads       uint64 // Frames uploaded into the texture
	Redraws       uint64 // Draws reusing the texture (no new frame)
	Reallocations uint64 // Texture storage re-definitions
	NoOps         uint64 // OnDrawFrame calls without a surface
	Failures      uint64 // Graphics resource failures
	DisplayedSeq  uint64 // Seq of the frame in the texture (0 = none)
	TextureWidth  int
	TextureHeight int
}

// Renderer is the GPU side of the pipeline.
//
// Entry points MUST be called from the consumer (render) context. State and
// Stats may be read from any goroutine.
type Renderer struct {
	dev Device
	src Source

	mu    sync.Mutex
	state State

	program uint32
	quad    uint32
	texture uint32
	texW    int
	texH    int

	// last is the newest frame seen, kept across surface loss so it can
	// be uploaded again after OnSurfaceCreated.
	last        *framehandoff.PublishedFrame
	uploadedSeq uint64

	stats Stats
}

// New creates a Renderer in the Uninitialized state.
func New(dev Device, src Source) *Renderer {
	return &Renderer{dev: dev, src: src}
}

// State returns the current lifecycle state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns a snapshot of renderer counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.State = r.state
	s.DisplayedSeq = r.uploadedSeq
	s.TextureWidth = r.texW
	s.TextureHeight = r.texH
	return s
}

// OnSurfaceCreated allocates the shader program, quad and texture.
//
// A context lost without OnSurfaceDestroyed (the host recreated the surface
// directly) is handled by dropping the stale handles first.
//
// On failure the renderer stays Uninitialized (rendering disabled) and the
// error wraps frame.ErrGraphicsResource.
func (r *Renderer) OnSurfaceCreated() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Uninitialized {
		r.releaseLocked()
	}

	program, err := r.dev.CompileProgram(VertexShader, FragmentShader)
	if err != nil {
		return r.failLocked("compile program", err)
	}
	r.program = program

	quad, err := r.dev.CreateQuad(QuadVertices)
	if err != nil {
		return r.failLocked("create quad", err)
	}
	r.quad = quad

	texture, err := r.dev.CreateTexture()
	if err != nil {
		return r.failLocked("create texture", err)
	}
	r.texture = texture

	r.setStateLocked(SurfaceReady)
	return nil
}

// OnSurfaceChanged updates the viewport. The texture is left alone: its
// size follows the frames, not the surface.
func (r *Renderer) OnSurfaceChanged(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case SurfaceReady, Rendering, SurfaceChanged:
	default:
		return fmt.Errorf("renderer: surface changed in state %v: %w", r.state, ErrInvalidState)
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("renderer: viewport %dx%d: %w", width, height, ErrInvalidState)
	}

	r.dev.Viewport(width, height)
	r.setStateLocked(SurfaceChanged)
	return nil
}

// OnDrawFrame renders one tick.
//
// Algorithm:
//  1. No surface (Uninitialized): no-op
//  2. Take the latest frame from the source, if newer than the one kept
//  3. Nothing ever received: clear
//  4. Kept frame not in the texture: reallocate storage on a dimension
//     change, then upload
//  5. Draw the quad
//
// A device failure releases every resource and disables rendering until the
// next OnSurfaceCreated.
func (r *Renderer) OnDrawFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Uninitialized || r.state == SurfaceDestroyed {
		r.stats.NoOps++
		return nil
	}

	if f, ok := r.src.ConsumeLatest(); ok && (r.last == nil || f.Seq > r.last.Seq) {
		r.last = f
	}

	if r.last == nil {
		r.dev.Clear()
		r.setStateLocked(Rendering)
		return nil
	}

	if r.last.Seq != r.uploadedSeq {
		if err := r.uploadLocked(r.last); err != nil {
			return err
		}
	} else {
		r.stats.Redraws++
	}

	if err := r.dev.Draw(r.program, r.quad, r.texture); err != nil {
		return r.failLocked("draw", err)
	}

	r.setStateLocked(Rendering)
	return nil
}

// OnSurfaceDestroyed releases every graphics resource and returns to
// Uninitialized. Later OnDrawFrame calls are no-ops. Idempotent.
func (r *Renderer) OnSurfaceDestroyed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Uninitialized {
		return
	}

	r.setStateLocked(SurfaceDestroyed)
	r.releaseLocked()
	r.setStateLocked(Uninitialized)
}

func (r *Renderer) uploadLocked(f *framehandoff.PublishedFrame) error {
	w, h := f.Edges.Width, f.Edges.Height

	if err := checkSize(w, h, r.texW, r.texH); err != nil {
		slog.Debug("renderer: reallocating texture", "error", err, "seq", f.Seq)
		if err := r.dev.AllocateTexture(r.texture, w, h); err != nil {
			return r.failLocked("allocate texture", err)
		}
		r.texW, r.texH = w, h
		r.stats.Reallocations++
	}

	if err := r.dev.UploadTexture(r.texture, w, h, f.Edges.Pix[:w*h]); err != nil {
		return r.failLocked("upload texture", err)
	}
	r.uploadedSeq = f.Seq
	r.stats.Uploads++
	return nil
}

// checkSize reports frame.ErrDimensionMismatch when a frame does not fit
// the allocated texture storage.
func checkSize(w, h, texW, texH int) error {
	if w != texW || h != texH {
		return fmt.Errorf("renderer: frame %dx%d, texture %dx%d: %w", w, h, texW, texH, frame.ErrDimensionMismatch)
	}
	return nil
}

// failLocked releases resources after a device error and disables rendering.
func (r *Renderer) failLocked(op string, cause error) error {
	r.stats.Failures++
	r.releaseLocked()
	r.setStateLocked(Uninitialized)

	err := fmt.Errorf("renderer: %s: %w: %w", op, frame.ErrGraphicsResource, cause)
	slog.Error("renderer: rendering disabled", "op", op, "error", cause)
	return err
}

func (r *Renderer) releaseLocked() {
	if r.texture != 0 {
		r.dev.DeleteTexture(r.texture)
	}
	if r.quad != 0 {
		r.dev.DeleteQuad(r.quad)
	}
	if r.program != 0 {
		r.dev.DeleteProgram(r.program)
	}
	r.program, r.quad, r.texture = 0, 0, 0
	r.texW, r.texH = 0, 0
	r.uploadedSeq = 0
}

func (r *Renderer) setStateLocked(s State) {
	if r.state == s {
		return
	}
	slog.Debug("renderer: state", "from", r.state, "to", s)
	r.state = s
}
