package edge

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// stepLuma builds a w×h plane: columns < split are 0, the rest 255.
func stepLuma(w, h, split int) frame.LumaPlane {
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := split; x < w; x++ {
			pix[y*w+x] = 255
		}
	}
	return frame.LumaPlane{Pix: pix, Stride: w, Width: w, Height: h}
}

func noiseLuma(w, h, stride int, seed int64) frame.LumaPlane {
	r := rand.New(rand.NewSource(seed))
	pix := make([]byte, stride*h)
	r.Read(pix)
	return frame.LumaPlane{Pix: pix, Stride: stride, Width: w, Height: h}
}

func newDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector() failed: %v", err)
	}
	return d
}

// TestStepScenario validates the 4×4 vertical step.
//
// Scenario:
//   - Columns 0–1 = 0, columns 2–3 = 255
//   - Assert: column 1 (the last dark column) is strong on every row,
//     every other pixel is 0, for every supported kernel size
func TestStepScenario(t *testing.T) {
	for _, k := range []int{1, 3, 5, 7} {
		cfg := DefaultConfig()
		cfg.KernelSize = k
		d := newDetector(t, cfg)

		var dst frame.EdgeMap
		if err := d.Detect(context.Background(), stepLuma(4, 4, 2), &dst); err != nil {
			t.Fatalf("kernel %d: Detect() failed: %v", k, err)
		}

		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := uint8(0)
				if x == 1 {
					want = 255
				}
				if got := dst.At(x, y); got != want {
					t.Errorf("kernel %d: (%d,%d) = %d, want %d", k, x, y, got, want)
				}
			}
		}
	}
}

func TestStepMagnitudeOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = OutputMagnitude
	d := newDetector(t, cfg)

	var dst frame.EdgeMap
	if err := d.Detect(context.Background(), stepLuma(4, 4, 2), &dst); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	// 5-tap blur turns the step into 16,80,175,239; Sobel gx at column 1 is
	// 4*(175-16) = 636, and 636>>3 = 79.
	if got := dst.At(1, 2); got != 79 {
		t.Errorf("magnitude at step = %d, want 79", got)
	}
	if got := dst.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
}

// TestPerCallThresholdOverride raises High above the step peak: the ridge
// is only weak, nothing is strong, so hysteresis leaves the map empty.
func TestPerCallThresholdOverride(t *testing.T) {
	d := newDetector(t, DefaultConfig())

	var dst frame.EdgeMap
	err := d.DetectWithThresholds(context.Background(), stepLuma(4, 4, 2), &dst, Thresholds{Low: 20, High: 100})
	if err != nil {
		t.Fatalf("DetectWithThresholds() failed: %v", err)
	}
	if n := dst.Count(); n != 0 {
		t.Errorf("Count() = %d, want 0 with High above the peak", n)
	}

	// The configured thresholds are untouched by an override.
	if err := d.Detect(context.Background(), stepLuma(4, 4, 2), &dst); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if n := dst.Count(); n != 4 {
		t.Errorf("Count() = %d after override, want 4", n)
	}
}

func TestOutputDimensionsMatchInput(t *testing.T) {
	d := newDetector(t, DefaultConfig())
	dst := frame.NewEdgeMap(640, 480)

	sizes := []struct{ w, h, stride int }{
		{1, 1, 1},
		{1, 7, 1},
		{9, 1, 16},
		{33, 17, 40},
		{640, 480, 640},
		{3, 5, 3},
	}

	for _, s := range sizes {
		if err := d.Detect(context.Background(), noiseLuma(s.w, s.h, s.stride, 1), dst); err != nil {
			t.Fatalf("%dx%d: Detect() failed: %v", s.w, s.h, err)
		}
		if dst.Width != s.w || dst.Height != s.h || len(dst.Pix) != s.w*s.h {
			t.Errorf("%dx%d: got %dx%d (len %d)", s.w, s.h, dst.Width, dst.Height, len(dst.Pix))
		}
	}
}

// TestDetectIsDeterministic runs the same input twice on one detector (warm
// scratch) and once on a fresh detector; all three maps must match.
func TestDetectIsDeterministic(t *testing.T) {
	luma := noiseLuma(64, 48, 72, 42)

	d := newDetector(t, DefaultConfig())
	var a, b, c frame.EdgeMap
	if err := d.Detect(context.Background(), luma, &a); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	// Dirty the scratch with a different frame in between.
	if err := d.Detect(context.Background(), noiseLuma(20, 20, 20, 7), &b); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if err := d.Detect(context.Background(), luma, &b); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	if err := newDetector(t, DefaultConfig()).Detect(context.Background(), luma, &c); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	if !bytes.Equal(a.Pix, b.Pix) || !bytes.Equal(a.Pix, c.Pix) {
		t.Error("identical input produced different edge maps")
	}
	if a.Count() == 0 {
		t.Error("noise input produced no edges (test input is too weak)")
	}
}

func TestUniformInputHasNoEdges(t *testing.T) {
	for _, v := range []byte{0, 128, 255} {
		pix := bytes.Repeat([]byte{v}, 32*24)
		luma := frame.LumaPlane{Pix: pix, Stride: 32, Width: 32, Height: 24}

		d := newDetector(t, DefaultConfig())
		var dst frame.EdgeMap
		if err := d.Detect(context.Background(), luma, &dst); err != nil {
			t.Fatalf("Detect() failed: %v", err)
		}
		if n := dst.Count(); n != 0 {
			t.Errorf("uniform %d: %d edge pixels, want 0", v, n)
		}
	}
}

// TestHysteresisIsTransitive validates multi-hop promotion.
//
// Scenario (6×6 class grid):
//
//	S . . . . w      S = strong, w = weak
//	. w . . . .
//	. . w . . .
//	. . . w . .
//	. . . . w .
//	. . . w . .
//
//   - The diagonal chain (1,1)…(4,4) plus the branch (3,5) reach S through
//     weak pixels only and must all be promoted
//   - The isolated weak pixel at (5,0) must be dropped
func TestHysteresisIsTransitive(t *testing.T) {
	const w, h = 6, 6
	class := make([]uint8, w*h)
	set := func(x, y int, c uint8) { class[y*w+x] = c }

	set(0, 0, classStrong)
	chain := [][2]int{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {3, 5}}
	for _, p := range chain {
		set(p[0], p[1], classWeak)
	}
	set(5, 0, classWeak)

	hysteresis(class, w, h, nil)

	for _, p := range chain {
		if got := class[p[1]*w+p[0]]; got != classStrong {
			t.Errorf("(%d,%d) = %d, want strong", p[0], p[1], got)
		}
	}
	if got := class[5]; got == classStrong {
		t.Error("isolated weak pixel (5,0) was promoted")
	}
}

// TestHysteresisEndToEnd builds a bright bar whose contrast fades: the
// high-contrast rows seed strong pixels and the faint rows survive only
// through the chain.
func TestHysteresisEndToEnd(t *testing.T) {
	const w, h = 8, 12
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		// Rows 0-3 step to 255, rows 4-11 only to 40.
		v := byte(255)
		if y >= 4 {
			v = 40
		}
		for x := 4; x < w; x++ {
			pix[y*w+x] = v
		}
	}
	luma := frame.LumaPlane{Pix: pix, Stride: w, Width: w, Height: h}

	cfg := DefaultConfig()
	cfg.KernelSize = 1
	d := newDetector(t, cfg)

	var dst frame.EdgeMap
	if err := d.Detect(context.Background(), luma, &dst); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	// Faint rows alone: 4*40>>3 = 20, weak. They must be linked to the
	// strong top segment.
	for y := 6; y < h; y++ {
		if got := dst.At(3, y); got != 255 {
			t.Errorf("row %d: faint edge = %d, want 255 (promoted through chain)", y, got)
		}
	}

	// Without the strong seed the same faint rows vanish.
	faint := frame.LumaPlane{Pix: pix[6*w:], Stride: w, Width: w, Height: h - 6}
	if err := d.Detect(context.Background(), faint, &dst); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if n := dst.Count(); n != 0 {
		t.Errorf("faint-only input: %d edge pixels, want 0", n)
	}
}

func TestDetectCancelled(t *testing.T) {
	d := newDetector(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst frame.EdgeMap
	if err := d.Detect(ctx, stepLuma(4, 4, 2), &dst); !errors.Is(err, context.Canceled) {
		t.Errorf("Detect(cancelled) = %v, want context.Canceled", err)
	}
}

func TestDetectRejectsInvalidInput(t *testing.T) {
	d := newDetector(t, DefaultConfig())
	var dst frame.EdgeMap

	bad := []frame.LumaPlane{
		{Pix: make([]byte, 4), Stride: 2, Width: 0, Height: 2},
		{Pix: make([]byte, 4), Stride: 1, Width: 2, Height: 2},
		{Pix: make([]byte, 3), Stride: 2, Width: 2, Height: 2},
	}
	for i, l := range bad {
		if err := d.Detect(context.Background(), l, &dst); !errors.Is(err, frame.ErrInvalidFormat) {
			t.Errorf("case %d: Detect() = %v, want ErrInvalidFormat", i, err)
		}
	}

	if err := d.Detect(context.Background(), stepLuma(4, 4, 2), nil); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Detect(nil dst) = %v, want ErrInvalidFormat", err)
	}
	if err := d.DetectWithThresholds(context.Background(), stepLuma(4, 4, 2), &dst, Thresholds{Low: 60, High: 50}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("DetectWithThresholds(low > high) = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"blur off", func(c *Config) { c.KernelSize = 1 }, false},
		{"even kernel", func(c *Config) { c.KernelSize = 4 }, true},
		{"kernel too large", func(c *Config) { c.KernelSize = 9 }, true},
		{"zero high", func(c *Config) { c.Low, c.High = 0, 0 }, true},
		{"equal thresholds", func(c *Config) { c.Low, c.High = 40, 40 }, false},
		{"unknown output", func(c *Config) { c.Output = Output(5) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestBackendRegistry(t *testing.T) {
	found := false
	for _, name := range Available() {
		if name == NativeBackend {
			found = true
		}
	}
	if !found {
		t.Fatalf("Available() = %v, missing %q", Available(), NativeBackend)
	}

	b, err := NewBackend("", DefaultConfig())
	if err != nil {
		t.Fatalf("NewBackend(\"\") failed: %v", err)
	}
	if b.Name() != NativeBackend {
		t.Errorf("default backend = %q, want %q", b.Name(), NativeBackend)
	}

	if _, err := NewBackend("does-not-exist", DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewBackend(unknown) = %v, want ErrInvalidConfig", err)
	}

	bad := DefaultConfig()
	bad.KernelSize = 2
	if _, err := NewBackend(NativeBackend, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewBackend(bad config) = %v, want ErrInvalidConfig", err)
	}
}

func BenchmarkDetectVGA(b *testing.B) {
	d, _ := NewDetector(DefaultConfig())
	luma := noiseLuma(640, 480, 640, 1)
	dst := frame.NewEdgeMap(640, 480)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := d.Detect(ctx, luma, dst); err != nil {
			b.Fatal(err)
		}
	}
}
