package framedump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framepool"
)

// paddedNV21 builds a 6×3 caller-owned NV21 frame with 8-byte row strides.
func paddedNV21(seed byte) *frame.RawFrame {
	y := make([]byte, 8*3)
	vu := make([]byte, 8*2)
	for i := range y {
		y[i] = seed + byte(i)
	}
	for i := range vu {
		vu[i] = 200 - byte(i)
	}
	return &frame.RawFrame{
		Width:     6,
		Height:    3,
		Format:    frame.FormatNV21,
		Timestamp: time.Unix(1700000000, 123456789),
		TraceID:   "trace-" + string('a'+seed),
		Planes: []frame.Plane{
			{Data: y, RowStride: 8, PixelStride: 1},
			{Data: vu, RowStride: 8, PixelStride: 2},
		},
	}
}

func record3(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	for i := byte(0); i < 3; i++ {
		if err := w.Write(paddedNV21(i)); err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if w.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", w.Frames())
	}
	return &buf
}

// TestReplayKeepsLayout validates that an unallocated replay returns the
// recorded strides and bytes.
func TestReplayKeepsLayout(t *testing.T) {
	r, err := NewReader(record3(t))
	if err != nil {
		t.Fatalf("NewReader() failed: %v", err)
	}

	for i := byte(0); i < 3; i++ {
		rf, err := r.Next(nil)
		if err != nil {
			t.Fatalf("Next(%d) failed: %v", i, err)
		}
		want := paddedNV21(i)
		if rf.Width != 6 || rf.Height != 3 || rf.Format != frame.FormatNV21 {
			t.Errorf("frame %d geometry = %dx%d %v", i, rf.Width, rf.Height, rf.Format)
		}
		if !rf.Timestamp.Equal(want.Timestamp) || rf.TraceID != want.TraceID {
			t.Errorf("frame %d metadata = %v %q", i, rf.Timestamp, rf.TraceID)
		}
		if rf.Planes[0].RowStride != 8 || rf.Planes[1].PixelStride != 2 {
			t.Errorf("frame %d strides = %+v", i, rf.Planes)
		}
		// The trailing padding of the last row is not recorded.
		if got := len(rf.Planes[0].Data); got != 8*2+6 {
			t.Errorf("frame %d Y bytes = %d, want 22", i, got)
		}
		if !bytes.Equal(rf.Planes[0].Data, want.Planes[0].Data[:22]) {
			t.Errorf("frame %d Y plane differs", i)
		}
	}

	if _, err := r.Next(nil); err != io.EOF {
		t.Errorf("Next() after last record = %v, want io.EOF", err)
	}
}

// TestReplayIntoPool validates that an allocated replay strips padding
// into a tightly packed pool frame.
func TestReplayIntoPool(t *testing.T) {
	r, err := NewReader(record3(t))
	if err != nil {
		t.Fatalf("NewReader() failed: %v", err)
	}
	pool := framepool.New()

	rf, err := r.Next(pool)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	defer rf.Release()

	src := paddedNV21(0)
	for y := 0; y < 3; y++ {
		for x := 0; x < 6; x++ {
			if got, want := rf.Planes[0].Data[y*6+x], src.Planes[0].Data[y*8+x]; got != want {
				t.Fatalf("Y(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 6; x++ {
			if got, want := rf.Planes[1].Data[y*6+x], src.Planes[1].Data[y*8+x]; got != want {
				t.Fatalf("VU row %d byte %d = %d, want %d", y, x, got, want)
			}
		}
	}
	if rf.TraceID != src.TraceID {
		t.Errorf("TraceID = %q, want %q", rf.TraceID, src.TraceID)
	}
	if s := pool.Stats(); s.Outstanding != 1 {
		t.Errorf("pool outstanding = %d, want 1", s.Outstanding)
	}
}

func TestReaderRejects(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("NOTADUMP"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("NewReader(bad magic) = %v, want ErrBadMagic", err)
	}
	if _, err := NewReader(bytes.NewReader([]byte("EDG"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("NewReader(short) = %v, want ErrBadMagic", err)
	}

	full := record3(t).Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated body", full[:len(full)-5]},
		{"truncated prefix", append([]byte(magic), 0, 0)},
		{"oversized length", binary.BigEndian.AppendUint32([]byte(magic), maxRecordBytes+1)},
		{"garbage body", append(binary.BigEndian.AppendUint32([]byte(magic), 3), 0xc1, 0xc1, 0xc1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("NewReader() failed: %v", err)
			}
			var last error
			for range 4 {
				if _, last = r.Next(nil); last != nil {
					break
				}
			}
			if !errors.Is(last, ErrCorrupt) {
				t.Errorf("Next() = %v, want ErrCorrupt", last)
			}
		})
	}
}

func TestWriteRejectsInvalidFrame(t *testing.T) {
	w, err := NewWriter(io.Discard)
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	bad := paddedNV21(0)
	bad.Planes = bad.Planes[:1]
	if err := w.Write(bad); !errors.Is(err, frame.ErrInvalidFormat) {
		t.Errorf("Write(1 plane NV21) = %v, want ErrInvalidFormat", err)
	}
	if w.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", w.Frames())
	}
}

type countingSink struct {
	*framepool.Pool
	submitted int
}

func (s *countingSink) Submit(rf *frame.RawFrame) error {
	s.submitted++
	return rf.Release()
}

func TestTee(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	sink := &countingSink{Pool: framepool.New()}
	tee := NewTee(sink, w)

	rf, err := tee.AcquireFrame(4, 4, frame.FormatNV21)
	if err != nil {
		t.Fatalf("AcquireFrame() failed: %v", err)
	}
	if err := tee.Submit(rf); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if err := tee.Submit(&frame.RawFrame{Width: 4, Height: 4, Format: frame.FormatNV21}); err != nil {
		t.Fatalf("Submit(invalid) failed: %v", err)
	}

	if sink.submitted != 2 {
		t.Errorf("sink saw %d frames, want 2", sink.submitted)
	}
	if w.Frames() != 1 || tee.Failed() != 1 {
		t.Errorf("recorded %d, failed %d; want 1 and 1", w.Frames(), tee.Failed())
	}
}
