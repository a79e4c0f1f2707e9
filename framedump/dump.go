// Package framedump records RawFrames to a byte stream and reads them back.
//
// Format:
//
//	"EDGDUMP1"                              8-byte magic
//	{ uint32 big-endian length | msgpack }  one record per frame
//
// A record holds the frame geometry, format, timestamp, trace ID and the
// bytes of every plane trimmed to what the geometry addresses. Row strides
// are kept, so a replayed frame has the same layout as the captured one.
package framedump

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/colorspace"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

const (
	magic = "EDGDUMP1"

	// maxRecordBytes bounds a single record; anything larger is corrupt.
	maxRecordBytes = 64 << 20
)

var (
	// ErrBadMagic reports a stream that is not a frame dump.
	ErrBadMagic = errors.New("framedump: not a frame dump")
	// ErrCorrupt reports a truncated or malformed record.
	ErrCorrupt = errors.New("framedump: corrupt record")
)

type planeRecord struct {
	Data        []byte `msgpack:"data"`
	RowStride   int    `msgpack:"row_stride"`
	PixelStride int    `msgpack:"pixel_stride"`
}

type record struct {
	Width     int           `msgpack:"width"`
	Height    int           `msgpack:"height"`
	Format    int           `msgpack:"format"`
	Timestamp time.Time     `msgpack:"timestamp"`
	TraceID   string        `msgpack:"trace_id"`
	Planes    []planeRecord `msgpack:"planes"`
}

// Writer appends frame records. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	frames uint64
}

// NewWriter writes the magic and returns a Writer on w.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return nil, fmt.Errorf("framedump: write header: %w", err)
	}
	return &Writer{w: bw}, nil
}

// Write validates rf and appends it. The frame is not released.
func (w *Writer) Write(rf *frame.RawFrame) error {
	if err := colorspace.Validate(rf); err != nil {
		return err
	}

	rec := record{
		Width:     rf.Width,
		Height:    rf.Height,
		Format:    int(rf.Format),
		Timestamp: rf.Timestamp,
		TraceID:   rf.TraceID,
		Planes:    make([]planeRecord, len(rf.Planes)),
	}
	for i, p := range rf.Planes {
		rec.Planes[i] = planeRecord{
			Data:        p.Data[:planeExtent(rf, i)],
			RowStride:   p.RowStride,
			PixelStride: p.PixelStride,
		}
	}

	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("framedump: marshal: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("framedump: write length prefix: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("framedump: write record: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of records written.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// planeExtent returns the bytes of plane i addressed by the frame geometry.
// rf must have passed colorspace.Validate.
func planeExtent(rf *frame.RawFrame, i int) int {
	p := rf.Planes[i]
	rows, rowBytes := rf.Height, rf.Width
	if i > 0 {
		cw, ch := colorspace.ChromaDims(rf.Width, rf.Height)
		rows, rowBytes = ch, cw
		if rf.Format == frame.FormatNV21 {
			rowBytes = 2 * cw
		} else if p.PixelStride > 1 {
			rowBytes = (cw-1)*p.PixelStride + 1
		}
	}
	return min(len(p.Data), p.RowStride*(rows-1)+rowBytes)
}

// Allocator supplies frame memory for decoded records.
// *pipeline.Pipeline and *framepool.Pool satisfy it.
type Allocator interface {
	AcquireFrame(width, height int, f frame.Format) (*frame.RawFrame, error)
}

// Reader decodes frame records.
type Reader struct {
	r      *bufio.Reader
	prefix [4]byte
	buf    []byte
}

// NewReader checks the magic and returns a Reader on r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var head [len(magic)]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMagic, err)
	}
	if string(head[:]) != magic {
		return nil, ErrBadMagic
	}
	return &Reader{r: br}, nil
}

// Next decodes the next record. With a nil alloc the returned frame holds
// its own copies of the plane bytes and has no owner; otherwise the bytes
// are copied into a tightly packed frame from alloc and the caller must
// Release it. Next returns io.EOF after the last record.
func (r *Reader) Next(alloc Allocator) (*frame.RawFrame, error) {
	if _, err := io.ReadFull(r.r, r.prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: length prefix: %w", ErrCorrupt, err)
	}

	n := binary.BigEndian.Uint32(r.prefix[:])
	if n == 0 || n > maxRecordBytes {
		return nil, fmt.Errorf("%w: record length %d", ErrCorrupt, n)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return nil, fmt.Errorf("%w: record body: %w", ErrCorrupt, err)
	}

	var rec record
	if err := msgpack.Unmarshal(r.buf, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	decoded := &frame.RawFrame{
		Width:     rec.Width,
		Height:    rec.Height,
		Format:    frame.Format(rec.Format),
		Timestamp: rec.Timestamp,
		TraceID:   rec.TraceID,
		Planes:    make([]frame.Plane, len(rec.Planes)),
	}
	for i, p := range rec.Planes {
		decoded.Planes[i] = frame.Plane{Data: p.Data, RowStride: p.RowStride, PixelStride: p.PixelStride}
	}
	if err := colorspace.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if alloc == nil {
		return decoded, nil
	}

	rf, err := alloc.AcquireFrame(decoded.Width, decoded.Height, decoded.Format)
	if err != nil {
		return nil, err
	}
	for i := range decoded.Planes {
		cols, rows, srcStep := planeSamples(decoded, i)
		_, _, dstStep := planeSamples(rf, i)
		copyPlane(rf.Planes[i], decoded.Planes[i], cols, rows, dstStep, srcStep)
	}
	rf.Timestamp = decoded.Timestamp
	rf.TraceID = decoded.TraceID
	return rf, nil
}

// planeSamples returns the samples per row, the rows and the sample
// step of plane i. The NV21 VU plane is walked byte by byte.
func planeSamples(rf *frame.RawFrame, i int) (cols, rows, step int) {
	if i == 0 {
		return rf.Width, rf.Height, 1
	}
	cw, ch := colorspace.ChromaDims(rf.Width, rf.Height)
	if rf.Format == frame.FormatNV21 {
		return 2 * cw, ch, 1
	}
	return cw, ch, max(rf.Planes[i].PixelStride, 1)
}

// copyPlane copies rows×cols samples. Rows are copied whole when both
// sides step by one byte.
func copyPlane(dst, src frame.Plane, cols, rows, dstStep, srcStep int) {
	for y := 0; y < rows; y++ {
		d := dst.Data[y*dst.RowStride:]
		s := src.Data[y*src.RowStride:]
		if dstStep == 1 && srcStep == 1 {
			copy(d[:cols], s[:cols])
			continue
		}
		for x := 0; x < cols; x++ {
			d[x*dstStep] = s[x*srcStep]
		}
	}
}
