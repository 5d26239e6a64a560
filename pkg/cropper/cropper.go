// Package cropper turns face candidates into fixed-size classifier input.
package cropper

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/mood-detector/pkg/types"
)

// RegionSize is the side of a normalized region in pixels.
const RegionSize = 48

// InputShape is the NHWC shape of a normalized region: a batch of one 48x48 single-channel image.
var InputShape = []int{1, RegionSize, RegionSize, 1}

// Tensor is a dense float32 array in row-major NHWC order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, shapeSize(shape))}
}

// Len returns the number of elements the shape describes.
func (t Tensor) Len() int {
	return shapeSize(t.Shape)
}

// HasShape reports whether t has exactly the given shape and a matching data length.
func (t Tensor) HasShape(shape ...int) bool {
	return sameShape(t.Shape, shape) && len(t.Data) == shapeSize(shape)
}

// Validate checks that the tensor is a normalized region.
func (t Tensor) Validate() error {
	if !t.HasShape(InputShape...) {
		return &types.ShapeMismatchError{Got: append([]int(nil), t.Shape...), Want: InputShape}
	}
	return nil
}

// Image renders a normalized region back to 8-bit grayscale.
func (t Tensor) Image() (*image.Gray, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, RegionSize, RegionSize))
	for i, v := range t.Data {
		img.Pix[i] = uint8(math.Round(clamp(float64(v), 0, 1) * 255))
	}
	return img, nil
}

// Config holds configuration for region normalization
type Config struct {
	Filter imaging.ResampleFilter
}

// Normalizer crops, resamples and rescales face regions.
type Normalizer struct {
	config Config
}

// New creates a Normalizer with bilinear resampling
func New() *Normalizer {
	return &Normalizer{config: Config{Filter: imaging.Linear}}
}

// NewWithConfig creates a Normalizer with custom configuration
func NewWithConfig(config Config) *Normalizer {
	return &Normalizer{config: config}
}

// ParseFilter maps a filter name from configuration to a resample filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "", "linear", "bilinear":
		return imaging.Linear, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box", "area":
		return imaging.Box, nil
	case "cubic", "catmullrom":
		return imaging.CatmullRom, nil
	case "lanczos":
		return imaging.Lanczos, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
}

// Normalize crops the candidate out of the frame, resamples it to 48x48 and
// maps intensities from [0, 255] to [0.0, 1.0].
func (n *Normalizer) Normalize(frame *image.Gray, c types.FaceCandidate) (Tensor, error) {
	rect := c.Rect()
	if c.Width <= 0 || c.Height <= 0 {
		return Tensor{}, &types.InvalidRegionError{Rect: rect}
	}

	clipped := rect.Intersect(frame.Bounds())
	if clipped.Empty() {
		return Tensor{}, &types.InvalidRegionError{Rect: rect}
	}

	cropped := imaging.Crop(frame, clipped)
	resized := imaging.Resize(cropped, RegionSize, RegionSize, n.config.Filter)

	t := NewTensor(InputShape...)
	for y := 0; y < RegionSize; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < RegionSize; x++ {
			// R, G and B are equal for a grayscale source.
			t.Data[y*RegionSize+x] = float32(row[x*4]) / 255.0
		}
	}

	return t, nil
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
