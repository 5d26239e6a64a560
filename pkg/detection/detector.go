// Package detection locates frontal faces in grayscale frames.
package detection

import (
	"fmt"
	"image"
	"io"
	"runtime/debug"

	"github.com/menta2k/mood-detector/internal/event"
	"github.com/menta2k/mood-detector/pkg/types"
)

var log = event.Log

// Config holds the cascade scan tunables
type Config struct {
	ScaleFactor  float64 // pyramid step between scan passes
	MinNeighbors int     // neighbours a hit needs before it is confirmed as a face
	ShiftFactor  float64 // sliding window step, relative to the window size
	MinSize      int     // smallest window side in pixels
	MaxSize      int     // largest window side in pixels
	IoUThreshold float64 // overlap at which two hits belong to the same face
	MinQuality   float32 // raw hits scoring below this are ignored
}

// DefaultConfig returns the scan parameters used for webcam frames.
func DefaultConfig() Config {
	return Config{
		ScaleFactor:  1.3,
		MinNeighbors: 5,
		ShiftFactor:  0.1,
		MinSize:      20,
		MaxSize:      1000,
		IoUThreshold: 0.2,
		MinQuality:   0,
	}
}

// Validate checks if the configuration is usable
func (c Config) Validate() error {
	if c.ScaleFactor <= 1 {
		return fmt.Errorf("scale factor must be greater than 1, got %v", c.ScaleFactor)
	}
	if c.MinNeighbors < 0 {
		return fmt.Errorf("min neighbors must not be negative, got %d", c.MinNeighbors)
	}
	if c.ShiftFactor <= 0 || c.ShiftFactor > 1 {
		return fmt.Errorf("shift factor must be in (0, 1], got %v", c.ShiftFactor)
	}
	if c.MinSize < 1 || c.MaxSize < c.MinSize {
		return fmt.Errorf("invalid window size range %d..%d", c.MinSize, c.MaxSize)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold >= 1 {
		return fmt.Errorf("iou threshold must be in [0, 1), got %v", c.IoUThreshold)
	}
	return nil
}

// Backend finds face rectangles in a grayscale frame whose origin is (0, 0).
// Implementations are immutable after construction and safe for concurrent use.
type Backend interface {
	Detect(frame *image.Gray, cfg Config) ([]image.Rectangle, error)
}

// Localizer validates frames, runs a backend and enforces the candidate bounds.
type Localizer struct {
	backend Backend
	config  Config
}

// New creates a Localizer with the default configuration
func New(backend Backend) *Localizer {
	return &Localizer{backend: backend, config: DefaultConfig()}
}

// NewWithConfig creates a Localizer with custom configuration
func NewWithConfig(backend Backend, config Config) *Localizer {
	return &Localizer{backend: backend, config: config}
}

// Config returns the scan configuration.
func (l *Localizer) Config() Config {
	return l.config
}

// Close releases backends that hold native resources.
func (l *Localizer) Close() error {
	if c, ok := l.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Detect returns the face candidates of a frame in backend emission order.
// A frame without faces yields an empty slice.
func (l *Localizer) Detect(frame *image.Gray) (faces []types.FaceCandidate, err error) {
	if frame == nil {
		return nil, &types.InvalidFrameError{}
	}

	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &types.InvalidFrameError{Width: b.Dx(), Height: b.Dy()}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("detection: %s (panic)\nstack: %s", r, debug.Stack())
			faces, err = nil, fmt.Errorf("detection: cascade panic: %v", r)
		}
	}()

	frame = rebase(frame)

	rects, err := l.backend.Detect(frame, l.config)
	if err != nil {
		return nil, fmt.Errorf("detection: %w", err)
	}

	faces = make([]types.FaceCandidate, 0, len(rects))
	for _, r := range rects {
		if c, ok := clampCandidate(r, b.Dx(), b.Dy()); ok {
			faces = append(faces, c)
		}
	}

	log.Debugf("detection: %d faces in %dx%d frame", len(faces), b.Dx(), b.Dy())

	return faces, nil
}

// clampCandidate fits a rectangle into the frame and drops it when nothing is left.
func clampCandidate(r image.Rectangle, width, height int) (types.FaceCandidate, bool) {
	r = r.Canon().Intersect(image.Rect(0, 0, width, height))
	if r.Empty() {
		return types.FaceCandidate{}, false
	}
	return types.FaceCandidate{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}, true
}

// rebase returns a frame whose bounds start at (0, 0) and whose stride equals its width.
func rebase(frame *image.Gray) *image.Gray {
	b := frame.Bounds()
	if b.Min == (image.Point{}) && frame.Stride == b.Dx() {
		return frame
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := frame.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], frame.Pix[src:src+b.Dx()])
	}
	return out
}
