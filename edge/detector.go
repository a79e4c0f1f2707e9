package edge

import (
	"context"
	"fmt"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// Detector is the native engine. Scratch buffers grow to the largest frame
// seen and are reused, so steady-state detection does not allocate.
//
// Not safe for concurrent use: one Detector per producer context.
type Detector struct {
	cfg  Config
	taps []uint32

	tmp    []uint32
	smooth []uint8
	mag    []uint16
	dir    []uint8
	class  []uint8
	stack  []int32
}

// NewDetector validates cfg and creates a Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, taps: kernels[cfg.KernelSize]}, nil
}

// Name implements Backend.
func (d *Detector) Name() string { return NativeBackend }

// Config returns the session configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect runs the engine with the configured thresholds.
func (d *Detector) Detect(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap) error {
	return d.DetectWithThresholds(ctx, luma, dst, d.cfg.Thresholds)
}

// DetectWithThresholds runs the engine with th instead of the configured
// thresholds. dst is reshaped to the luma dimensions.
//
// Cancellation is checked between stages; a cancelled call returns ctx.Err()
// and leaves dst undefined.
func (d *Detector) DetectWithThresholds(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap, th Thresholds) error {
	if err := checkLuma(luma); err != nil {
		return err
	}
	if dst == nil {
		return fmt.Errorf("edge: nil destination: %w", frame.ErrInvalidFormat)
	}
	if err := th.Validate(); err != nil {
		return err
	}

	w, h := luma.Width, luma.Height
	d.grow(w * h)

	if err := ctx.Err(); err != nil {
		return err
	}
	blur(luma, d.smooth, d.tmp, d.taps)

	if err := ctx.Err(); err != nil {
		return err
	}
	gradient(d.smooth, w, h, d.mag, d.dir)

	if err := ctx.Err(); err != nil {
		return err
	}
	suppress(d.mag, d.dir, w, h, th, d.class)

	if err := ctx.Err(); err != nil {
		return err
	}
	d.stack = hysteresis(d.class, w, h, d.stack)

	dst.Reshape(w, h)
	for i, c := range d.class {
		switch {
		case c != classStrong:
			dst.Pix[i] = 0
		case d.cfg.Output == OutputMagnitude:
			dst.Pix[i] = level(d.mag[i])
		default:
			dst.Pix[i] = 255
		}
	}
	return nil
}

// grow sizes the scratch buffers for n pixels.
func (d *Detector) grow(n int) {
	if cap(d.smooth) < n {
		d.tmp = make([]uint32, n)
		d.smooth = make([]uint8, n)
		d.mag = make([]uint16, n)
		d.dir = make([]uint8, n)
		d.class = make([]uint8, n)
	}
	d.tmp = d.tmp[:n]
	d.smooth = d.smooth[:n]
	d.mag = d.mag[:n]
	d.dir = d.dir[:n]
	d.class = d.class[:n]
}

func checkLuma(l frame.LumaPlane) error {
	if l.Width < 1 || l.Height < 1 {
		return fmt.Errorf("edge: luma %dx%d: %w", l.Width, l.Height, frame.ErrInvalidFormat)
	}
	if l.Stride < l.Width {
		return fmt.Errorf("edge: luma stride %d < width %d: %w", l.Stride, l.Width, frame.ErrInvalidFormat)
	}
	if need := l.Stride*(l.Height-1) + l.Width; len(l.Pix) < need {
		return fmt.Errorf("edge: luma spans %d bytes, need %d: %w", len(l.Pix), need, frame.ErrInvalidFormat)
	}
	return nil
}
