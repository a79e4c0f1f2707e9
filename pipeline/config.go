package pipeline

import (
	"fmt"
	"strings"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/edge"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framepool"
)

// IngestPolicy decides what happens to a frame that arrives while another
// one is being processed.
type IngestPolicy int

const (
	// ReplacePending keeps a single pending slot: the newest arrival
	// replaces an older unprocessed frame, which is released and counted
	// as dropped. The newest frame is always eventually processed.
	ReplacePending IngestPolicy = iota

	// RejectWhenBusy drops the arriving frame itself and reports ErrBusy.
	RejectWhenBusy
)

func (p IngestPolicy) String() string {
	switch p {
	case ReplacePending:
		return "replace-pending"
	case RejectWhenBusy:
		return "reject-when-busy"
	default:
		return fmt.Sprintf("IngestPolicy(%d)", int(p))
	}
}

// ParseIngestPolicy maps a config spelling to an IngestPolicy.
func ParseIngestPolicy(s string) (IngestPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace-pending", "replace_pending":
		return ReplacePending, nil
	case "reject-when-busy", "reject_when_busy":
		return RejectWhenBusy, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown ingest policy %q", s)
	}
}

// Resolution is a target size. A zero side is derived from the other one
// keeping the source aspect ratio; both zero disables downscaling.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// IsZero reports a disabled target.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Config is fixed per pipeline instance (per session); thresholds never
// change mid-stream.
type Config struct {
	// GaussianKernelSize is the blur tap count: 1 (off), 3, 5 or 7.
	GaussianKernelSize int

	// LowThreshold/HighThreshold are the hysteresis bounds on the 8-bit
	// gradient magnitude.
	LowThreshold  uint8
	HighThreshold uint8

	// Output selects binary (0/255) or magnitude edge maps.
	Output edge.Output

	// TargetResolution downscales luma before filtering (zero = off).
	// Frames already at or below the target are processed as is.
	TargetResolution Resolution

	// Orientation is applied to the edge map before publishing.
	Orientation frame.Orientation

	IngestPolicy IngestPolicy

	// MaxRetainedSlots bounds the frame pool free list.
	MaxRetainedSlots int

	// MaxOutstandingBytes bounds frame memory held at once (0 = unbounded).
	MaxOutstandingBytes int

	// Backend names the edge engine ("native" or "opencv").
	Backend string
}

// DefaultConfig returns the documented defaults:
//
//	GaussianKernelSize  5
//	LowThreshold        20
//	HighThreshold       50
//	Output              binary
//	TargetResolution    off
//	Orientation         identity
//	IngestPolicy        replace-pending
//	MaxRetainedSlots    4
//	Backend             native
func DefaultConfig() Config {
	ec := edge.DefaultConfig()
	return Config{
		GaussianKernelSize: ec.KernelSize,
		LowThreshold:       ec.Low,
		HighThreshold:      ec.High,
		Output:             ec.Output,
		IngestPolicy:       ReplacePending,
		MaxRetainedSlots:   framepool.DefaultMaxRetained,
		Backend:            edge.NativeBackend,
	}
}

// EdgeConfig returns the engine part of the configuration.
func (c Config) EdgeConfig() edge.Config {
	return edge.Config{
		KernelSize: c.GaussianKernelSize,
		Thresholds: edge.Thresholds{Low: c.LowThreshold, High: c.HighThreshold},
		Output:     c.Output,
	}
}

// Validate checks the configuration (fail fast, before any frame).
func (c Config) Validate() error {
	if err := c.EdgeConfig().Validate(); err != nil {
		return err
	}
	if c.TargetResolution.Width < 0 || c.TargetResolution.Height < 0 {
		return fmt.Errorf("pipeline: target resolution %dx%d", c.TargetResolution.Width, c.TargetResolution.Height)
	}
	if err := c.Orientation.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if c.IngestPolicy != ReplacePending && c.IngestPolicy != RejectWhenBusy {
		return fmt.Errorf("pipeline: ingest policy %v", c.IngestPolicy)
	}
	if c.MaxRetainedSlots < 0 {
		return fmt.Errorf("pipeline: max retained slots %d", c.MaxRetainedSlots)
	}
	if c.MaxOutstandingBytes < 0 {
		return fmt.Errorf("pipeline: max outstanding bytes %d", c.MaxOutstandingBytes)
	}
	return nil
}
