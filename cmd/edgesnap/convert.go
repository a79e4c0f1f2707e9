package main

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/colorspace"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framedump"
)

// imageToNV21 converts img into an NV21 frame from alloc, the layout a
// camera would deliver. Chroma is the mean of each 2×2 block.
func imageToNV21(img image.Image, alloc framedump.Allocator) (*frame.RawFrame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	rf, err := alloc.AcquireFrame(w, h, frame.FormatNV21)
	if err != nil {
		return nil, err
	}

	y := rf.Planes[0]
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			r, g, bl := rgbAt(rgba, px, py)
			yy, _, _ := color.RGBToYCbCr(r, g, bl)
			y.Data[py*y.RowStride+px] = yy
		}
	}

	vu := rf.Planes[1]
	cw, ch := colorspace.ChromaDims(w, h)
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var sr, sg, sb, n int
			for dy := 0; dy < 2 && 2*cy+dy < h; dy++ {
				for dx := 0; dx < 2 && 2*cx+dx < w; dx++ {
					r, g, bl := rgbAt(rgba, 2*cx+dx, 2*cy+dy)
					sr, sg, sb, n = sr+int(r), sg+int(g), sb+int(bl), n+1
				}
			}
			_, cb, cr := color.RGBToYCbCr(uint8(sr/n), uint8(sg/n), uint8(sb/n))
			i := cy*vu.RowStride + 2*cx
			vu.Data[i] = cr
			vu.Data[i+1] = cb
		}
	}
	return rf, nil
}

func rgbAt(img *image.RGBA, x, y int) (r, g, b uint8) {
	i := img.PixOffset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}
