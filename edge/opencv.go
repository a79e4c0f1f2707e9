//go:build opencv

package edge

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// OpenCVBackend is the name of the gocv Canny engine (build tag "opencv").
const OpenCVBackend = "opencv"

// cvDetector runs cv::GaussianBlur followed by cv::Canny.
//
// Thresholds are scaled from the 8-bit domain back to OpenCV's L1 gradient
// domain (×8) so both engines agree on the same config values.
type cvDetector struct {
	cfg Config
	buf []byte
}

func newCVDetector(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cvDetector{cfg: cfg}, nil
}

func (d *cvDetector) Name() string { return OpenCVBackend }

func (d *cvDetector) Detect(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap) error {
	return d.DetectWithThresholds(ctx, luma, dst, d.cfg.Thresholds)
}

func (d *cvDetector) DetectWithThresholds(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap, th Thresholds) error {
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
	n := w * h
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	d.buf = d.buf[:n]
	for y := 0; y < h; y++ {
		copy(d.buf[y*w:(y+1)*w], luma.Pix[y*luma.Stride:])
	}

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, d.buf)
	if err != nil {
		return fmt.Errorf("edge: opencv mat: %w", err)
	}
	defer src.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := src
	if k := d.cfg.KernelSize; k > 1 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		if err := gocv.GaussianBlur(src, &blurred, image.Pt(k, k), 0, 0, gocv.BorderReplicate); err != nil {
			return fmt.Errorf("edge: opencv blur: %w", err)
		}
		work = blurred
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	edges := gocv.NewMat()
	defer edges.Close()
	if err := gocv.Canny(work, &edges, float32(th.Low)*8, float32(th.High)*8); err != nil {
		return fmt.Errorf("edge: opencv canny: %w", err)
	}

	dst.Reshape(w, h)
	copy(dst.Pix, edges.ToBytes())
	return nil
}

func init() {
	Register(OpenCVBackend, newCVDetector)
}
