package types

import (
	"fmt"
	"image"
)

// DecodeError reports a malformed or undecodable frame payload.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return "decode frame: malformed payload"
	}
	return fmt.Sprintf("decode frame: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// InvalidFrameError reports a frame that cannot be scanned for faces.
type InvalidFrameError struct {
	Width  int
	Height int
}

func (e *InvalidFrameError) Error() string {
	return fmt.Sprintf("invalid frame: %dx%d", e.Width, e.Height)
}

// InvalidRegionError reports a degenerate face crop.
type InvalidRegionError struct {
	Rect image.Rectangle
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("invalid region: %v has zero area", e.Rect)
}

// ShapeMismatchError reports classifier input or output of the wrong shape.
type ShapeMismatchError struct {
	Got  []int
	Want []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: got %v, want %v", e.Got, e.Want)
}
