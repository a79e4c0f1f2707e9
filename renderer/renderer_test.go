package renderer

import (
	"errors"
	"testing"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
)

// fakeDevice records calls and bounds-checks uploads against the allocated
// texture size, the way a GL driver would reject them.
type fakeDevice struct {
	next uint32
	live map[uint32]string

	texW, texH int
	allocs     int
	uploads    int
	draws      int
	clears     int
	viewW      int
	viewH      int

	failCompile bool
	failUpload  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{live: make(map[uint32]string)}
}

func (d *fakeDevice) handle(kind string) uint32 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *fakeDevice) CompileProgram(vs, fs string) (uint32, error) {
	if d.failCompile {
		return 0, errors.New("0:3: syntax error")
	}
	return d.handle("program"), nil
}

func (d *fakeDevice) DeleteProgram(p uint32) { delete(d.live, p) }
func (d *fakeDevice) CreateQuad(v []float32) (uint32, error) { return d.handle("quad"), nil }
func (d *fakeDevice) DeleteQuad(q uint32) { delete(d.live, q) }
func (d *fakeDevice) CreateTexture() (uint32, error) { return d.handle("texture"), nil }
func (d *fakeDevice) DeleteTexture(t uint32) { delete(d.live, t) }
func (d *fakeDevice) Viewport(w, h int) { d.viewW, d.viewH = w, h }
func (d *fakeDevice) Clear() { d.clears++ }

func (d *fakeDevice) AllocateTexture(t uint32, w, h int) error {
	d.texW, d.texH = w, h
	d.allocs++
	return nil
}

func (d *fakeDevice) Draw(program, quad, texture uint32) error {
	d.draws++
	return nil
}

func (d *fakeDevice) UploadTexture(t uint32, w, h int, pix []byte) error {
	if d.failUpload {
		return errors.New("GL_OUT_OF_MEMORY")
	}
	if _, ok := d.live[t]; !ok {
		return errors.New("upload into deleted texture")
	}
	if w != d.texW || h != d.texH || len(pix) != d.texW*d.texH {
		return errors.New("upload out of bounds of texture storage")
	}
	d.uploads++
	return nil
}

func setup(t *testing.T) (*fakeDevice, framehandoff.Handoff, *Renderer) {
	t.Helper()
	dev := newFakeDevice()
	h := framehandoff.New()
	t.Cleanup(h.Close)
	r := New(dev, h.Subscribe("renderer"))
	return dev, h, r
}

func mustCreate(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.OnSurfaceCreated(); err != nil {
		t.Fatalf("OnSurfaceCreated() failed: %v", err)
	}
}

// TestLifecycle walks the full state machine.
//
// Scenario:
//
//	Uninitialized → SurfaceReady → SurfaceChanged → Rendering →
//	SurfaceChanged → Rendering → (destroyed) → Uninitialized
func TestLifecycle(t *testing.T) {
	dev, h, r := setup(t)

	if r.State() != Uninitialized {
		t.Fatalf("initial state = %v", r.State())
	}

	mustCreate(t, r)
	if r.State() != SurfaceReady {
		t.Errorf("after create: %v, want SurfaceReady", r.State())
	}

	steps := []struct {
		name string
		do   func() error
		want State
	}{
		{"changed", func() error { return r.OnSurfaceChanged(640, 480) }, SurfaceChanged},
		{"draw", r.OnDrawFrame, Rendering},
		{"changed again", func() error { return r.OnSurfaceChanged(480, 640) }, SurfaceChanged},
		{"draw again", r.OnDrawFrame, Rendering},
	}

	h.Publish(frame.NewEdgeMap(8, 6), time.Now())
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if r.State() != s.want {
			t.Errorf("%s: state %v, want %v", s.name, r.State(), s.want)
		}
	}
	if dev.viewW != 480 || dev.viewH != 640 {
		t.Errorf("viewport = %dx%d, want 480x640", dev.viewW, dev.viewH)
	}

	// Viewport changes never touch texture storage.
	if dev.allocs != 1 {
		t.Errorf("texture allocations = %d, want 1", dev.allocs)
	}

	r.OnSurfaceDestroyed()
	if r.State() != Uninitialized {
		t.Errorf("after destroy: %v, want Uninitialized", r.State())
	}
	if len(dev.live) != 0 {
		t.Errorf("%d graphics objects leaked after destroy", len(dev.live))
	}

	r.OnSurfaceDestroyed() // idempotent
}

// TestResizeReallocatesTexture validates the 640×480 → 320×240 scenario.
func TestResizeReallocatesTexture(t *testing.T) {
	dev, h, r := setup(t)
	mustCreate(t, r)

	h.Publish(frame.NewEdgeMap(640, 480), time.Now())
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() failed: %v", err)
	}

	h.Publish(frame.NewEdgeMap(320, 240), time.Now())
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() after resize failed: %v", err)
	}

	stats := r.Stats()
	if stats.TextureWidth != 320 || stats.TextureHeight != 240 {
		t.Errorf("texture = %dx%d, want 320x240", stats.TextureWidth, stats.TextureHeight)
	}
	if stats.Reallocations != 2 || dev.allocs != 2 {
		t.Errorf("Reallocations = %d (device %d), want 2", stats.Reallocations, dev.allocs)
	}
	if dev.uploads != 2 {
		t.Errorf("uploads = %d, want 2", dev.uploads)
	}
}

// TestRedrawWithoutNewFrame validates the idempotent redraw path.
func TestRedrawWithoutNewFrame(t *testing.T) {
	dev, h, r := setup(t)
	mustCreate(t, r)

	// Nothing published yet: clear only.
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() failed: %v", err)
	}
	if dev.clears != 1 || dev.draws != 0 {
		t.Errorf("clears=%d draws=%d, want 1/0", dev.clears, dev.draws)
	}

	seq := h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	for i := 0; i < 3; i++ {
		if err := r.OnDrawFrame(); err != nil {
			t.Fatalf("OnDrawFrame() failed: %v", err)
		}
	}

	stats := r.Stats()
	if stats.Uploads != 1 || stats.Redraws != 2 || dev.draws != 3 {
		t.Errorf("Uploads=%d Redraws=%d draws=%d, want 1/2/3", stats.Uploads, stats.Redraws, dev.draws)
	}
	if stats.DisplayedSeq != seq {
		t.Errorf("DisplayedSeq = %d, want %d", stats.DisplayedSeq, seq)
	}
}

// TestDrawAfterDestroyIsNoOp validates that a pending tick after teardown
// never touches freed resources.
func TestDrawAfterDestroyIsNoOp(t *testing.T) {
	dev, h, r := setup(t)

	// Before any surface.
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() before create = %v", err)
	}

	mustCreate(t, r)
	h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	r.OnDrawFrame()
	r.OnSurfaceDestroyed()

	h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	draws := dev.draws
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() after destroy = %v", err)
	}
	if dev.draws != draws {
		t.Error("OnDrawFrame() drew after destroy")
	}
	if got := r.Stats().NoOps; got != 2 {
		t.Errorf("NoOps = %d, want 2", got)
	}

	if err := r.OnSurfaceChanged(10, 10); !errors.Is(err, ErrInvalidState) {
		t.Errorf("OnSurfaceChanged() without surface = %v, want ErrInvalidState", err)
	}
}

// TestRecreateReuploadsLastFrame validates recovery after surface loss:
// the pipeline kept publishing, the new surface shows the latest frame at
// once, and an older frame is never shown.
func TestRecreateReuploadsLastFrame(t *testing.T) {
	dev, h, r := setup(t)
	mustCreate(t, r)

	h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	r.OnDrawFrame()
	r.OnSurfaceDestroyed()

	// Nothing new while the surface was gone: the kept frame is re-uploaded.
	mustCreate(t, r)
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() after recreate failed: %v", err)
	}
	if dev.uploads != 2 {
		t.Errorf("uploads = %d, want 2 (re-upload after recreate)", dev.uploads)
	}

	// Publishing continued while rendering was down.
	r.OnSurfaceDestroyed()
	latest := h.Publish(frame.NewEdgeMap(6, 6), time.Now())
	mustCreate(t, r)
	r.OnDrawFrame()
	if got := r.Stats().DisplayedSeq; got != latest {
		t.Errorf("DisplayedSeq = %d, want latest %d", got, latest)
	}
}

// TestCompileFailureDisablesRendering validates GraphicsResourceFailure:
// reported, rendering disabled, the handoff keeps working, and the next
// successful OnSurfaceCreated resumes with the latest frame.
func TestCompileFailureDisablesRendering(t *testing.T) {
	dev, h, r := setup(t)
	dev.failCompile = true

	err := r.OnSurfaceCreated()
	if !errors.Is(err, frame.ErrGraphicsResource) {
		t.Fatalf("OnSurfaceCreated() = %v, want ErrGraphicsResource", err)
	}
	if r.State() != Uninitialized {
		t.Errorf("state = %v, want Uninitialized", r.State())
	}

	seq := h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	if err := r.OnDrawFrame(); err != nil {
		t.Errorf("OnDrawFrame() while disabled = %v", err)
	}
	if dev.draws != 0 {
		t.Error("drew without a program")
	}

	dev.failCompile = false
	mustCreate(t, r)
	if err := r.OnDrawFrame(); err != nil {
		t.Fatalf("OnDrawFrame() after recovery failed: %v", err)
	}
	if got := r.Stats().DisplayedSeq; got != seq {
		t.Errorf("DisplayedSeq = %d, want %d", got, seq)
	}
}

func TestUploadFailureDisablesRendering(t *testing.T) {
	dev, h, r := setup(t)
	mustCreate(t, r)
	dev.failUpload = true

	h.Publish(frame.NewEdgeMap(4, 4), time.Now())
	if err := r.OnDrawFrame(); !errors.Is(err, frame.ErrGraphicsResource) {
		t.Fatalf("OnDrawFrame() = %v, want ErrGraphicsResource", err)
	}
	if r.State() != Uninitialized {
		t.Errorf("state = %v, want Uninitialized", r.State())
	}
	if len(dev.live) != 0 {
		t.Errorf("%d graphics objects leaked after failure", len(dev.live))
	}
	if got := r.Stats().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
}

func TestCheckSize(t *testing.T) {
	if err := checkSize(4, 4, 4, 4); err != nil {
		t.Errorf("checkSize(equal) = %v", err)
	}
	if err := checkSize(320, 240, 640, 480); !errors.Is(err, frame.ErrDimensionMismatch) {
		t.Errorf("checkSize(mismatch) = %v, want ErrDimensionMismatch", err)
	}
}
