package layout

import (
	"errors"
	"testing"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framepool"
)

func TestLayouts(t *testing.T) {
	tests := []struct {
		name string
		got  NV21
		want NV21
	}{
		{"aligned 4x4", Aligned(4, 4), NV21{4, 4, 4, 4, 16, 24}},
		{"aligned 6x3", Aligned(6, 3), NV21{6, 3, 8, 8, 32, 48}},
		{"aligned 640x480", Aligned(640, 480), NV21{640, 480, 640, 640, 307200, 460800}},
		{"packed 6x3", Packed(6, 3), NV21{6, 3, 6, 6, 18, 30}},
		{"packed 5x5", Packed(5, 5), NV21{5, 5, 5, 6, 25, 43}},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %+v, want %+v", tt.name, tt.got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	if l, err := Detect(6, 3, 48); err != nil || l.YStride != 8 {
		t.Errorf("Detect(6,3,48) = %+v, %v; want aligned", l, err)
	}
	if l, err := Detect(6, 3, 30); err != nil || l.YStride != 6 {
		t.Errorf("Detect(6,3,30) = %+v, %v; want packed", l, err)
	}
	if _, err := Detect(6, 3, 29); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Detect(short) = %v, want ErrInvalidFormat", err)
	}
	if _, err := Detect(0, 3, 100); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Detect(0 width) = %v, want ErrInvalidFormat", err)
	}
}

// TestCopyStripsPadding validates the copy of a padded 6×3 buffer into a
// tightly packed pool frame.
func TestCopyStripsPadding(t *testing.T) {
	l := Aligned(6, 3)
	src := make([]byte, l.Size)
	for i := range src {
		src[i] = 0xEE // padding marker
	}
	for row := 0; row < 3; row++ {
		for x := 0; x < 6; x++ {
			src[row*l.YStride+x] = byte(row*10 + x)
		}
	}
	for row := 0; row < 2; row++ {
		for i := 0; i < 6; i++ {
			src[l.VUOffset+row*l.VUStride+i] = byte(100 + row*10 + i)
		}
	}

	pool := framepool.New()
	dst, err := pool.AcquireFrame(6, 3, frame.FormatNV21)
	if err != nil {
		t.Fatalf("AcquireFrame() failed: %v", err)
	}
	defer dst.Release()

	if err := Copy(dst, src, l); err != nil {
		t.Fatalf("Copy() failed: %v", err)
	}

	for row := 0; row < 3; row++ {
		for x := 0; x < 6; x++ {
			if got, want := dst.Planes[0].Data[row*6+x], byte(row*10+x); got != want {
				t.Errorf("Y(%d,%d) = %d, want %d", x, row, got, want)
			}
		}
	}
	for row := 0; row < 2; row++ {
		for i := 0; i < 6; i++ {
			if got, want := dst.Planes[1].Data[row*6+i], byte(100+row*10+i); got != want {
				t.Errorf("VU row %d byte %d = %d, want %d", row, i, got, want)
			}
		}
	}
}

func TestCopyRejectsMismatch(t *testing.T) {
	pool := framepool.New()
	dst, err := pool.AcquireFrame(4, 4, frame.FormatNV21)
	if err != nil {
		t.Fatalf("AcquireFrame() failed: %v", err)
	}
	defer dst.Release()

	if err := Copy(dst, make([]byte, 100), Aligned(6, 3)); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Copy(size mismatch) = %v, want ErrInvalidFormat", err)
	}
	if err := Copy(dst, make([]byte, 10), Aligned(4, 4)); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Copy(short) = %v, want ErrInvalidFormat", err)
	}
}
