package colorspace

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// ChromaOrder selects the component order of interleaved chroma output.
type ChromaOrder int

const (
	// OrderVU produces NV21 chroma (V first).
	OrderVU ChromaOrder = iota
	// OrderUV produces NV12 chroma (U first).
	OrderUV
)

// Converter owns the scratch buffers of the secondary display paths.
// Not safe for concurrent use: it lives in the producer context.
type Converter struct {
	cb []byte
	cr []byte
}

// NewConverter creates a Converter with empty scratch buffers.
func NewConverter() *Converter {
	return &Converter{}
}

// Luma returns the luma plane of rf as a direct slice of plane 0.
// No bytes are copied: the result is valid until rf is released.
func (c *Converter) Luma(rf *frame.RawFrame) (frame.LumaPlane, error) {
	if err := Validate(rf); err != nil {
		return frame.LumaPlane{}, err
	}

	y := rf.Planes[0]
	return frame.LumaPlane{
		Pix:    y.Data,
		Stride: y.RowStride,
		Width:  rf.Width,
		Height: rf.Height,
	}, nil
}

// chromaAt returns the (u, v) sample at chroma coordinates (x, y).
func chromaAt(rf *frame.RawFrame, x, y int) (u, v byte) {
	switch rf.Format {
	case frame.FormatNV21:
		vu := rf.Planes[1]
		off := y*vu.RowStride + 2*x
		return vu.Data[off+1], vu.Data[off]
	default:
		up, vp := rf.Planes[1], rf.Planes[2]
		return up.Data[y*up.RowStride+x*pixelStride(up)], vp.Data[y*vp.RowStride+x*pixelStride(vp)]
	}
}

// InterleaveChroma writes the two half-resolution chroma planes of rf into
// dst as tightly packed pairs in the requested order. dst is grown if
// needed; the filled slice is returned.
func (c *Converter) InterleaveChroma(rf *frame.RawFrame, dst []byte, order ChromaOrder) ([]byte, error) {
	if err := Validate(rf); err != nil {
		return nil, err
	}

	cw, ch := ChromaDims(rf.Width, rf.Height)
	n := 2 * cw * ch
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	// Already interleaved in the wanted order: row copies only.
	if rf.Format == frame.FormatNV21 && order == OrderVU {
		vu := rf.Planes[1]
		for y := 0; y < ch; y++ {
			copy(dst[y*2*cw:(y+1)*2*cw], vu.Data[y*vu.RowStride:])
		}
		return dst, nil
	}

	for y := 0; y < ch; y++ {
		row := dst[y*2*cw : (y+1)*2*cw]
		for x := 0; x < cw; x++ {
			u, v := chromaAt(rf, x, y)
			if order == OrderVU {
				row[2*x], row[2*x+1] = v, u
			} else {
				row[2*x], row[2*x+1] = u, v
			}
		}
	}
	return dst, nil
}

// ToNV21 repacks rf into a tightly packed NV21 buffer (Y rows followed by
// interleaved VU). dst is grown if needed; the filled slice is returned.
func (c *Converter) ToNV21(rf *frame.RawFrame, dst []byte) ([]byte, error) {
	if err := Validate(rf); err != nil {
		return nil, err
	}

	w, h := rf.Width, rf.Height
	cw, ch := ChromaDims(w, h)
	ySize := w * h
	n := ySize + 2*cw*ch
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	y := rf.Planes[0]
	for row := 0; row < h; row++ {
		copy(dst[row*w:(row+1)*w], y.Data[row*y.RowStride:])
	}

	if _, err := c.InterleaveChroma(rf, dst[ySize:ySize:n], OrderVU); err != nil {
		return nil, err
	}
	return dst, nil
}

// ToRGBA converts rf for direct passthrough display. dst is reused when it
// already has the frame dimensions, otherwise a new image is allocated.
//
// The frame is viewed as an image.YCbCr (4:2:0) and converted by
// x/image/draw; chroma is deinterleaved into scratch first when the source
// planes are not planar with a shared stride.
func (c *Converter) ToRGBA(rf *frame.RawFrame, dst *image.RGBA) (*image.RGBA, error) {
	if err := Validate(rf); err != nil {
		return nil, err
	}

	bounds := image.Rect(0, 0, rf.Width, rf.Height)
	if dst == nil || dst.Bounds() != bounds {
		dst = image.NewRGBA(bounds)
	}

	src := &image.YCbCr{
		Y:              rf.Planes[0].Data,
		YStride:        rf.Planes[0].RowStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           bounds,
	}

	cw, ch := ChromaDims(rf.Width, rf.Height)
	if rf.Format == frame.FormatYUV420Planar &&
		pixelStride(rf.Planes[1]) == 1 && pixelStride(rf.Planes[2]) == 1 &&
		rf.Planes[1].RowStride == rf.Planes[2].RowStride {
		src.Cb = rf.Planes[1].Data
		src.Cr = rf.Planes[2].Data
		src.CStride = rf.Planes[1].RowStride
	} else {
		c.splitChroma(rf, cw, ch)
		src.Cb = c.cb
		src.Cr = c.cr
		src.CStride = cw
	}

	draw.Draw(dst, bounds, src, image.Point{}, draw.Src)
	return dst, nil
}

// splitChroma deinterleaves chroma into the tightly packed cb/cr scratch.
func (c *Converter) splitChroma(rf *frame.RawFrame, cw, ch int) {
	n := cw * ch
	if cap(c.cb) < n {
		c.cb = make([]byte, n)
		c.cr = make([]byte, n)
	}
	c.cb, c.cr = c.cb[:n], c.cr[:n]

	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			u, v := chromaAt(rf, x, y)
			c.cb[y*cw+x] = u
			c.cr[y*cw+x] = v
		}
	}
}

// String describes the order for logs.
func (o ChromaOrder) String() string {
	switch o {
	case OrderVU:
		return "VU"
	case OrderUV:
		return "UV"
	default:
		return fmt.Sprintf("ChromaOrder(%d)", int(o))
	}
}
