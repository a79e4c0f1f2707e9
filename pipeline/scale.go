package pipeline

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// targetSize resolves the processed size of a width×height frame.
// ok is false when no downscale applies.
func targetSize(r Resolution, width, height int) (w, h int, ok bool) {
	if r.IsZero() {
		return width, height, false
	}

	w, h = r.Width, r.Height
	switch {
	case w == 0:
		w = max(1, width*h/height)
	case h == 0:
		h = max(1, height*w/width)
	}

	// Never upscale.
	if w >= width && h >= height {
		return width, height, false
	}
	return min(w, width), min(h, height), true
}

// scaler resamples luma into a reused *image.Gray.
type scaler struct {
	dst *image.Gray
}

// scale returns luma downscaled to w×h. The result aliases scaler memory
// and is valid until the next call.
func (s *scaler) scale(luma frame.LumaPlane, w, h int) frame.LumaPlane {
	bounds := image.Rect(0, 0, w, h)
	if s.dst == nil || s.dst.Rect != bounds {
		s.dst = image.NewGray(bounds)
	}

	src := &image.Gray{
		Pix:    luma.Pix,
		Stride: luma.Stride,
		Rect:   image.Rect(0, 0, luma.Width, luma.Height),
	}
	draw.ApproxBiLinear.Scale(s.dst, bounds, src, src.Rect, draw.Src, nil)

	return frame.LumaPlane{Pix: s.dst.Pix, Stride: s.dst.Stride, Width: w, Height: h}
}
