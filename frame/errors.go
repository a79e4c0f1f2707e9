package frame

import "errors"

// Error taxonomy surfaced by the pipeline. All frame-level failures are
// local: the affected frame is skipped and the next arrival is the retry.
var (
	// ErrInvalidFormat reports an unsupported or inconsistent RawFrame layout.
	// The frame is dropped, the pipeline continues.
	ErrInvalidFormat = errors.New("invalid frame format")

	// ErrOutOfMemory reports that a frame buffer could not be allocated.
	// The frame is dropped, the pipeline continues.
	ErrOutOfMemory = errors.New("out of frame memory")

	// ErrGraphicsResource reports a shader or GPU resource allocation failure.
	// Rendering stays disabled until the next surface creation; the CPU
	// pipeline is unaffected.
	ErrGraphicsResource = errors.New("graphics resource failure")

	// ErrDimensionMismatch reports that an edge map does not match the
	// allocated texture. The renderer handles it by reallocating; it never
	// reaches the host.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
