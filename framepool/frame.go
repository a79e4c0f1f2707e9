package framepool

import (
	"fmt"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// FrameSize returns the tightly packed byte size of a width×height frame.
func FrameSize(width, height int, f frame.Format) (int, error) {
	if width < 1 || height < 1 {
		return 0, fmt.Errorf("framepool: %dx%d: %w", width, height, frame.ErrInvalidFormat)
	}
	cw, ch := (width+1)/2, (height+1)/2

	switch f {
	case frame.FormatNV21, frame.FormatYUV420Planar:
		return width*height + 2*cw*ch, nil
	default:
		return 0, fmt.Errorf("framepool: format %v: %w", f, frame.ErrInvalidFormat)
	}
}

// AcquireFrame returns a RawFrame whose planes are carved, tightly packed,
// out of a single slot. The frame owns the slot until Release.
func (p *Pool) AcquireFrame(width, height int, f frame.Format) (*frame.RawFrame, error) {
	size, err := FrameSize(width, height, f)
	if err != nil {
		return nil, err
	}

	slot, err := p.Acquire(size)
	if err != nil {
		return nil, err
	}

	buf := slot.Bytes()
	ySize := width * height
	cw, ch := (width+1)/2, (height+1)/2

	rf := &frame.RawFrame{
		Width:     width,
		Height:    height,
		Format:    f,
		Timestamp: time.Now(),
		Owner:     slot,
	}

	switch f {
	case frame.FormatNV21:
		rf.Planes = []frame.Plane{
			{Data: buf[:ySize:ySize], RowStride: width, PixelStride: 1},
			{Data: buf[ySize:], RowStride: 2 * cw, PixelStride: 2},
		}
	case frame.FormatYUV420Planar:
		cSize := cw * ch
		rf.Planes = []frame.Plane{
			{Data: buf[:ySize:ySize], RowStride: width, PixelStride: 1},
			{Data: buf[ySize : ySize+cSize : ySize+cSize], RowStride: cw, PixelStride: 1},
			{Data: buf[ySize+cSize:], RowStride: cw, PixelStride: 1},
		}
	}

	return rf, nil
}
