package gstsrc

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture/internal/layout"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// Counters are updated from the GStreamer streaming thread.
type Counters struct {
	Captured   atomic.Uint64 // samples pulled from the appsink
	Submitted  atomic.Uint64 // frames accepted by the sink
	Rejected   atomic.Uint64 // frames the sink refused (busy, no memory, stopped)
	CopyErrors atomic.Uint64 // samples whose size did not match the caps
	BytesRead  atomic.Uint64
}

// CallbackContext holds what OnNewSample needs.
type CallbackContext struct {
	Width  int
	Height int

	// Acquire returns an empty NV21 frame of Width×Height.
	Acquire func(width, height int) (*frame.RawFrame, error)
	// Submit hands a filled frame on; it owns rf afterwards.
	Submit func(rf *frame.RawFrame) error
	// Observe is called with the arrival time of every copied frame.
	Observe func(t time.Time)

	Counters *Counters
}

// OnNewSample copies the latest appsink sample into a pool frame and
// submits it.
//
// A bad sample is skipped, never fatal: the stream continues with the
// next one.
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("capture: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("capture: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	rf, ok := copySample(data, ctx)
	buffer.Unmap()
	if !ok {
		return gst.FlowOK
	}

	if ctx.Observe != nil {
		ctx.Observe(time.Now())
	}

	if err := ctx.Submit(rf); err != nil {
		ctx.Counters.Rejected.Add(1)
		slog.Debug("capture: frame not accepted", "trace_id", rf.TraceID, "error", err)
		return gst.FlowOK
	}
	ctx.Counters.Submitted.Add(1)
	return gst.FlowOK
}

// copySample moves mapped buffer bytes into a fresh frame.
func copySample(data []byte, ctx *CallbackContext) (*frame.RawFrame, bool) {
	if len(data) == 0 {
		slog.Warn("capture: empty buffer received")
		return nil, false
	}
	ctx.Counters.Captured.Add(1)
	ctx.Counters.BytesRead.Add(uint64(len(data)))

	l, err := layout.Detect(ctx.Width, ctx.Height, len(data))
	if err != nil {
		ctx.Counters.CopyErrors.Add(1)
		slog.Warn("capture: unexpected buffer size", "bytes", len(data), "error", err)
		return nil, false
	}

	rf, err := ctx.Acquire(ctx.Width, ctx.Height)
	if err != nil {
		ctx.Counters.Rejected.Add(1)
		slog.Debug("capture: no frame memory, dropping sample", "error", err)
		return nil, false
	}

	if err := layout.Copy(rf, data, l); err != nil {
		rf.Release()
		ctx.Counters.CopyErrors.Add(1)
		slog.Warn("capture: copy failed", "error", err)
		return nil, false
	}
	return rf, true
}
