package edgeimg

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

func TestGrayAliasesPix(t *testing.T) {
	m := frame.NewEdgeMap(3, 2)
	m.Pix[4] = 255

	g := Gray(m)
	if g.GrayAt(1, 1).Y != 255 || g.GrayAt(0, 0).Y != 0 {
		t.Errorf("GrayAt mismatch: (1,1)=%d (0,0)=%d", g.GrayAt(1, 1).Y, g.GrayAt(0, 0).Y)
	}
	m.Pix[0] = 7
	if g.GrayAt(0, 0).Y != 7 {
		t.Error("Gray copied the edge map")
	}
}

func TestFor(t *testing.T) {
	for _, f := range []string{"webp", "PNG"} {
		if _, err := For(f); err != nil {
			t.Errorf("For(%q) failed: %v", f, err)
		}
	}
	if _, err := For("gif"); err == nil {
		t.Error("For(gif) should fail")
	}
}

func TestEncodePNG(t *testing.T) {
	enc, err := For("png")
	if err != nil {
		t.Fatalf("For(png) failed: %v", err)
	}
	m := frame.NewEdgeMap(4, 4)
	m.Pix[5] = 255

	var buf bytes.Buffer
	if err := enc.Encode(&buf, m); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("bounds = %v, want 4x4", b)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r != 0xffff {
		t.Errorf("pixel (1,1) = %d, want white", r)
	}
}
