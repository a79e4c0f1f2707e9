package frame

import "fmt"

// Rotation is a clockwise rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Orientation maps sensor coordinates to display coordinates: rotate
// clockwise, then mirror horizontally.
type Orientation struct {
	Rotation Rotation `yaml:"rotation"`
	Mirror   bool     `yaml:"mirror"`
}

// Transverse is transpose followed by a flip on both axes. Back cameras
// mounted in portrait devices deliver landscape frames that need it.
var Transverse = Orientation{Rotation: Rotate270, Mirror: true}

// IsIdentity reports whether the orientation leaves frames untouched.
func (o Orientation) IsIdentity() bool {
	return o.Rotation == Rotate0 && !o.Mirror
}

// Validate rejects rotations that are not a multiple of 90 degrees.
func (o Orientation) Validate() error {
	switch o.Rotation {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return nil
	default:
		return fmt.Errorf("unsupported rotation %d (must be 0, 90, 180 or 270)", int(o.Rotation))
	}
}

// Dimensions returns the output size for a width×height input.
func (o Orientation) Dimensions(width, height int) (int, int) {
	if o.Rotation == Rotate90 || o.Rotation == Rotate270 {
		return height, width
	}
	return width, height
}

// Reorient writes src into dst under orientation o. dst is reshaped to the
// oriented dimensions; dst and src must not share memory.
func Reorient(dst, src *EdgeMap, o Orientation) {
	sw, sh := src.Width, src.Height
	dw, dh := o.Dimensions(sw, sh)
	dst.Reshape(dw, dh)

	if o.IsIdentity() {
		copy(dst.Pix, src.Pix)
		return
	}

	for y := 0; y < dh; y++ {
		row := dst.Pix[y*dw : (y+1)*dw]
		for x := 0; x < dw; x++ {
			xr := x
			if o.Mirror {
				xr = dw - 1 - x
			}

			var sx, sy int
			switch o.Rotation {
			case Rotate90:
				sx, sy = y, sh-1-xr
			case Rotate180:
				sx, sy = sw-1-xr, sh-1-y
			case Rotate270:
				sx, sy = sw-1-y, xr
			default:
				sx, sy = xr, y
			}
			row[x] = src.Pix[sy*sw+sx]
		}
	}
}
