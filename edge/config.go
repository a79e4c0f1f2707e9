// Package edge implements the Canny-style edge detection engine.
//
// Stages (all integer arithmetic, scratch reused across calls):
//
//	LumaPlane → Gaussian (separable, clamp-to-edge)
//	          → Sobel 3×3 (uint16 L1 magnitude + 4-sector direction)
//	          → non-maximum suppression
//	          → double threshold (8-bit magnitude domain)
//	          → hysteresis (work stack, 8-connectivity)
//	          → EdgeMap
//
// Output is deterministic: identical input and configuration give
// bit-identical maps.
package edge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig reports a rejected engine configuration.
var ErrInvalidConfig = errors.New("edge: invalid config")

// Output selects what an edge pixel carries.
type Output int

const (
	// OutputBinary writes 255 for edge pixels and 0 elsewhere.
	OutputBinary Output = iota

	// OutputMagnitude writes the 8-bit gradient magnitude of edge pixels
	// (non-edge pixels stay 0).
	OutputMagnitude
)

// String returns the config spelling of the mode.
func (o Output) String() string {
	switch o {
	case OutputBinary:
		return "binary"
	case OutputMagnitude:
		return "magnitude"
	default:
		return fmt.Sprintf("Output(%d)", int(o))
	}
}

// ParseOutput maps "binary" or "magnitude" to an Output.
func ParseOutput(s string) (Output, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary":
		return OutputBinary, nil
	case "magnitude":
		return OutputMagnitude, nil
	default:
		return 0, fmt.Errorf("edge: output %q: %w", s, ErrInvalidConfig)
	}
}

// Thresholds are the hysteresis bounds in the 8-bit magnitude domain.
// A pixel is strong when its magnitude is ≥ High and weak when it is
// ≥ Low but below High.
type Thresholds struct {
	Low  uint8
	High uint8
}

// Validate checks Low ≤ High and High > 0.
func (t Thresholds) Validate() error {
	if t.High == 0 {
		return fmt.Errorf("edge: high threshold must be > 0: %w", ErrInvalidConfig)
	}
	if t.Low > t.High {
		return fmt.Errorf("edge: low threshold %d above high %d: %w", t.Low, t.High, ErrInvalidConfig)
	}
	return nil
}

// Config holds engine parameters. It is fixed per session.
type Config struct {
	// KernelSize is the Gaussian tap count: 1 (blur off), 3, 5 or 7.
	KernelSize int

	Thresholds

	Output Output
}

// DefaultConfig returns the tuned defaults: a 5-tap blur with thresholds
// 20/50.
//
// With these values a sharp 0→255 step yields a single strong line on the
// dark side of the step (8-bit peak magnitude 79), while sensor noise of a
// few grey levels stays below Low after blurring.
func DefaultConfig() Config {
	return Config{
		KernelSize: 5,
		Thresholds: Thresholds{Low: 20, High: 50},
		Output:     OutputBinary,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, ok := kernels[c.KernelSize]; !ok {
		return fmt.Errorf("edge: kernel size %d (want 1, 3, 5 or 7): %w", c.KernelSize, ErrInvalidConfig)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Output != OutputBinary && c.Output != OutputMagnitude {
		return fmt.Errorf("edge: output mode %v: %w", c.Output, ErrInvalidConfig)
	}
	return nil
}
