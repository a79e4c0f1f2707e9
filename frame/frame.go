// Package frame defines the data model shared by every stage of the edge
// preview pipeline: raw camera frames, luma planes, edge maps and the error
// taxonomy reported to hosts.
//
// Ownership chain:
//
//	camera callback → RawFrame (pool slot) → LumaPlane (alias of plane 0)
//	                                              ↓
//	                                     EdgeMap (engine output)
//	                                              ↓
//	                                     PublishedFrame (handoff slot)
//
// A RawFrame is owned by its pool slot until Release. A LumaPlane never
// outlives the RawFrame it aliases. An EdgeMap is immutable once published.
package frame

import (
	"fmt"
	"time"
)

// Format is the layout tag of a RawFrame.
type Format int

const (
	// FormatNV21 is the Android camera default: a full-resolution Y plane
	// followed by half-resolution interleaved V/U samples (2 planes).
	FormatNV21 Format = iota + 1

	// FormatYUV420Planar is YUV_420_888 delivered as three planes (Y, U, V).
	// Chroma planes may carry a pixel stride of 2 when the sensor backs them
	// with a semi-planar buffer.
	FormatYUV420Planar
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatNV21:
		return "NV21"
	case FormatYUV420Planar:
		return "YUV_420_888"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// PlaneCount returns the number of planes the format carries, or 0 for an
// unknown tag.
func (f Format) PlaneCount() int {
	switch f {
	case FormatNV21:
		return 2
	case FormatYUV420Planar:
		return 3
	default:
		return 0
	}
}

// Plane is one byte span of a RawFrame.
type Plane struct {
	// Data holds the plane bytes. It may be longer than the plane needs.
	Data []byte

	// RowStride is the distance in bytes between the starts of two rows.
	// It may exceed the tightly packed row width.
	RowStride int

	// PixelStride is the distance in bytes between two samples of a row
	// (1 for planar data, 2 for interleaved chroma).
	PixelStride int
}

// Releaser returns memory to its owner. framepool.Slot implements it.
type Releaser interface {
	Release() error
}

// RawFrame is one camera image in sensor-native layout.
//
// Contract:
//   - The producer fills Planes, then hands the frame to the pipeline.
//   - The pipeline calls Release exactly once when it is done with the frame
//     (processed, dropped or discarded at teardown).
//   - Planes MUST NOT be touched after Release.
type RawFrame struct {
	Width     int
	Height    int
	Format    Format
	Planes    []Plane
	Timestamp time.Time

	// TraceID correlates the frame across capture, processing and display logs.
	TraceID string

	// Owner receives the frame memory back on Release (nil = caller-owned).
	Owner Releaser

	released bool
}

// Release returns the frame memory to its owner. Safe to call on a frame
// without an owner; subsequent calls are no-ops.
func (f *RawFrame) Release() error {
	if f == nil || f.released {
		return nil
	}
	f.released = true
	if f.Owner == nil {
		return nil
	}
	return f.Owner.Release()
}

// Released reports whether Release has been called.
func (f *RawFrame) Released() bool {
	return f.released
}

// LumaPlane is a single-channel 8-bit grid. Pix may alias RawFrame memory,
// so Stride can be larger than Width.
type LumaPlane struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// At returns the sample at (x, y). No bounds clamping.
func (l *LumaPlane) At(x, y int) uint8 {
	return l.Pix[y*l.Stride+x]
}

// EdgeMap is the engine output: a tightly packed 8-bit grid (stride == Width).
type EdgeMap struct {
	Pix    []byte
	Width  int
	Height int
}

// NewEdgeMap allocates a zeroed EdgeMap.
func NewEdgeMap(width, height int) *EdgeMap {
	return &EdgeMap{
		Pix:    make([]byte, width*height),
		Width:  width,
		Height: height,
	}
}

// Reshape resizes the map in place, reusing Pix when its capacity allows.
// Contents are undefined after a reshape.
func (m *EdgeMap) Reshape(width, height int) {
	n := width * height
	if cap(m.Pix) < n {
		m.Pix = make([]byte, n)
	}
	m.Pix = m.Pix[:n]
	m.Width = width
	m.Height = height
}

// At returns the value at (x, y).
func (m *EdgeMap) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// Count returns the number of non-zero pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}
