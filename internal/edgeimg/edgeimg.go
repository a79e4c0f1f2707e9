// Package edgeimg turns edge maps into encoded images.
package edgeimg

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/HugoSmits86/nativewebp"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// Gray views an edge map as a grey image without copying.
func Gray(m *frame.EdgeMap) *image.Gray {
	return &image.Gray{
		Pix:    m.Pix,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Encoder writes one image in a fixed format.
type Encoder struct {
	Ext         string // file extension with the dot
	ContentType string
	encode      func(w io.Writer, img image.Image) error
}

// Encode writes m.
func (e Encoder) Encode(w io.Writer, m *frame.EdgeMap) error {
	return e.encode(w, Gray(m))
}

// For returns the encoder for "webp" or "png" (case-insensitive).
func For(format string) (Encoder, error) {
	switch strings.ToLower(format) {
	case "webp":
		return Encoder{".webp", "image/webp", func(w io.Writer, img image.Image) error {
			return nativewebp.Encode(w, img, nil)
		}}, nil
	case "png":
		return Encoder{".png", "image/png", png.Encode}, nil
	default:
		return Encoder{}, fmt.Errorf("unknown image format %q (must be webp or png)", format)
	}
}
