// Package gstsrc builds the GStreamer capture graph and its appsink
// callback.
package gstsrc

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig describes the capture graph.
type PipelineConfig struct {
	Source string // "test" or "v4l2"
	Device string
	Width  int
	Height int
	FPS    float64
}

// Elements holds the pipeline and the elements touched after creation.
type Elements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	CapsFilter *gst.Element
}

// SourceFactory returns the GStreamer element name for a source kind.
func SourceFactory(source string) (string, error) {
	switch source {
	case "test":
		return "videotestsrc", nil
	case "v4l2":
		return "v4l2src", nil
	default:
		return "", fmt.Errorf("unknown source %q", source)
	}
}

// CreatePipeline builds, without starting:
//
//	src → videoconvert → videoscale → videorate → capsfilter(NV21) → appsink
//
// The appsink keeps one buffer and drops older ones, so a slow consumer
// never builds a queue inside GStreamer either.
func CreatePipeline(cfg PipelineConfig) (*Elements, error) {
	gst.Init(nil)

	factory, err := SourceFactory(cfg.Source)
	if err != nil {
		return nil, err
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}
	switch cfg.Source {
	case "test":
		src.SetProperty("is-live", true)
	case "v4l2":
		src.SetProperty("device", cfg.Device)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(BuildCaps(cfg.Width, cfg.Height, cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true)

	if err := pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link elements: %w", err)
	}

	slog.Debug("capture: pipeline created",
		"source", factory,
		"caps", BuildCaps(cfg.Width, cfg.Height, cfg.FPS),
	)

	return &Elements{
		Pipeline:   pipeline,
		AppSink:    appsink,
		CapsFilter: capsfilter,
	}, nil
}

// UpdateFramerateCaps swaps the capsfilter caps without rebuilding.
func UpdateFramerateCaps(capsfilter *gst.Element, width, height int, fps float64) error {
	if capsfilter == nil {
		return fmt.Errorf("capsfilter is nil")
	}
	return capsfilter.SetProperty("caps", gst.NewCapsFromString(BuildCaps(width, height, fps)))
}

// Restart cycles the pipeline through NULL back to PLAYING.
func Restart(el *Elements) error {
	if err := el.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to reset pipeline: %w", err)
	}
	if err := el.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to restart pipeline: %w", err)
	}
	return nil
}

// DestroyPipeline stops the pipeline and releases its resources.
func DestroyPipeline(el *Elements) error {
	if el == nil || el.Pipeline == nil {
		return nil
	}
	if err := el.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// CheckAvailable verifies that GStreamer and the source element exist.
func CheckAvailable(source string) error {
	gst.Init(nil)

	factory, err := SourceFactory(source)
	if err != nil {
		return err
	}
	elem, err := gst.NewElement(factory)
	if err != nil {
		return fmt.Errorf("element %s not available: %w", factory, err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// BuildCaps returns the NV21 caps string. Rates below 1 FPS are expressed
// as 1/N.
func BuildCaps(width, height int, fps float64) string {
	num, den := 1, 1
	if fps < 1 {
		den = int(1/fps + 0.5)
	} else {
		num = int(fps + 0.5)
	}
	return fmt.Sprintf("video/x-raw,format=NV21,width=%d,height=%d,framerate=%d/%d", width, height, num, den)
}
