// Package layout copies NV21 video buffers into pool frames.
//
// GStreamer pads raw video rows: for NV21 both planes use a row stride of
// RU4(width) and the VU plane starts after RU2(height) luma rows. Sources
// that deliver tightly packed buffers are recognised by size.
package layout

import (
	"fmt"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// NV21 describes one NV21 buffer.
type NV21 struct {
	Width, Height int
	YStride       int
	VUStride      int
	VUOffset      int
	Size          int
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// Aligned returns the default GStreamer layout for width×height.
func Aligned(width, height int) NV21 {
	stride := roundUp(width, 4)
	offset := stride * roundUp(height, 2)
	return NV21{
		Width:    width,
		Height:   height,
		YStride:  stride,
		VUStride: stride,
		VUOffset: offset,
		Size:     offset + stride*roundUp(height, 2)/2,
	}
}

// Packed returns the layout with no row padding.
func Packed(width, height int) NV21 {
	cw, ch := (width+1)/2, (height+1)/2
	return NV21{
		Width:    width,
		Height:   height,
		YStride:  width,
		VUStride: 2 * cw,
		VUOffset: width * height,
		Size:     width*height + 2*cw*ch,
	}
}

// Detect picks the layout matching a buffer of n bytes.
func Detect(width, height, n int) (NV21, error) {
	if width < 1 || height < 1 {
		return NV21{}, fmt.Errorf("layout: %dx%d: %w", width, height, frame.ErrInvalidFormat)
	}
	if l := Aligned(width, height); n >= l.Size {
		return l, nil
	}
	if l := Packed(width, height); n >= l.Size {
		return l, nil
	}
	return NV21{}, fmt.Errorf("layout: %d bytes too short for %dx%d NV21: %w", n, width, height, frame.ErrInvalidFormat)
}

// Copy writes src, laid out as l, into the planes of dst. dst must be an
// NV21 frame of the same size (framepool.AcquireFrame output).
func Copy(dst *frame.RawFrame, src []byte, l NV21) error {
	if dst.Format != frame.FormatNV21 || len(dst.Planes) < 2 ||
		dst.Width != l.Width || dst.Height != l.Height {
		return fmt.Errorf("layout: destination %dx%d %v does not match %dx%d NV21: %w",
			dst.Width, dst.Height, dst.Format, l.Width, l.Height, frame.ErrInvalidFormat)
	}
	if len(src) < l.Size {
		return fmt.Errorf("layout: %d bytes, need %d: %w", len(src), l.Size, frame.ErrInvalidFormat)
	}

	y, vu := dst.Planes[0], dst.Planes[1]
	for row := 0; row < l.Height; row++ {
		copy(y.Data[row*y.RowStride:row*y.RowStride+l.Width], src[row*l.YStride:])
	}

	rowBytes := 2 * ((l.Width + 1) / 2)
	for row := 0; row < (l.Height+1)/2; row++ {
		s := l.VUOffset + row*l.VUStride
		copy(vu.Data[row*vu.RowStride:row*vu.RowStride+rowBytes], src[s:s+rowBytes])
	}
	return nil
}
