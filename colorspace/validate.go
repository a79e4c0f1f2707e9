// Package colorspace turns sensor-native semi-planar frames into the luma
// plane the edge engine consumes, and optionally into interleaved chroma or
// RGBA for secondary display paths.
//
// Nothing in this package assumes stride == width: every accessor walks rows
// by RowStride and samples by PixelStride.
package colorspace

import (
	"fmt"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// ChromaDims returns the half-resolution chroma grid for a width×height frame.
func ChromaDims(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// Validate checks a RawFrame against its format tag.
//
// Rules:
//   - Width and Height ≥ 1
//   - Plane count matches the format (NV21: 2, YUV_420_888: 3)
//   - RowStride covers one row of samples
//   - Each plane spans RowStride*(rows-1) + PixelStride*(cols-1) + 1 bytes
//     (the last row may be short, as camera HALs deliver it)
//
// Returns frame.ErrInvalidFormat (wrapped) on any violation.
func Validate(rf *frame.RawFrame) error {
	if rf == nil {
		return fmt.Errorf("colorspace: nil frame: %w", frame.ErrInvalidFormat)
	}
	if rf.Width < 1 || rf.Height < 1 {
		return fmt.Errorf("colorspace: dimensions %dx%d: %w", rf.Width, rf.Height, frame.ErrInvalidFormat)
	}

	want := rf.Format.PlaneCount()
	if want == 0 {
		return fmt.Errorf("colorspace: unsupported format %v: %w", rf.Format, frame.ErrInvalidFormat)
	}
	if len(rf.Planes) != want {
		return fmt.Errorf("colorspace: %v needs %d planes, got %d: %w", rf.Format, want, len(rf.Planes), frame.ErrInvalidFormat)
	}

	if err := checkPlane("Y", rf.Planes[0], rf.Width, rf.Height, 1); err != nil {
		return err
	}

	cw, ch := ChromaDims(rf.Width, rf.Height)
	switch rf.Format {
	case frame.FormatNV21:
		// One interleaved VU row holds 2*cw bytes.
		if ps := rf.Planes[1].PixelStride; ps != 0 && ps != 2 {
			return fmt.Errorf("colorspace: NV21 VU pixel stride %d (want 2): %w", ps, frame.ErrInvalidFormat)
		}
		if err := checkPlane("VU", rf.Planes[1], 2*cw, ch, 1); err != nil {
			return err
		}
	case frame.FormatYUV420Planar:
		for i, name := range []string{"U", "V"} {
			p := rf.Planes[i+1]
			ps := pixelStride(p)
			if ps != 1 && ps != 2 {
				return fmt.Errorf("colorspace: %s pixel stride %d: %w", name, ps, frame.ErrInvalidFormat)
			}
			if err := checkPlane(name, p, cw, ch, ps); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkPlane(name string, p frame.Plane, cols, rows, ps int) error {
	rowBytes := ps*(cols-1) + 1
	if p.RowStride < rowBytes {
		return fmt.Errorf("colorspace: %s row stride %d < %d: %w", name, p.RowStride, rowBytes, frame.ErrInvalidFormat)
	}
	need := p.RowStride*(rows-1) + rowBytes
	if len(p.Data) < need {
		return fmt.Errorf("colorspace: %s plane spans %d bytes, need %d: %w", name, len(p.Data), need, frame.ErrInvalidFormat)
	}
	return nil
}

// pixelStride treats an unset stride as tightly packed.
func pixelStride(p frame.Plane) int {
	if p.PixelStride <= 0 {
		return 1
	}
	return p.PixelStride
}
