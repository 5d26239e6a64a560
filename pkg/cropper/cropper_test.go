package cropper

import (
	"errors"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mood-detector/pkg/types"
)

// createTestFrame creates a grayscale frame with a horizontal gradient
func createTestFrame(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = uint8((x * 255) / (width - 1))
		}
	}
	return img
}

func assertNormalized(t *testing.T, tensor Tensor) {
	t.Helper()
	require.NoError(t, tensor.Validate())
	assert.Equal(t, []int{1, 48, 48, 1}, tensor.Shape)
	assert.Len(t, tensor.Data, 48*48)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
}

func TestNormalizeSizes(t *testing.T) {
	n := New()
	frame := createTestFrame(640, 480)

	tests := []struct {
		name string
		c    types.FaceCandidate
	}{
		{"downscale", types.FaceCandidate{X: 100, Y: 50, Width: 300, Height: 300}},
		{"upscale", types.FaceCandidate{X: 10, Y: 10, Width: 12, Height: 12}},
		{"non square", types.FaceCandidate{X: 0, Y: 0, Width: 200, Height: 31}},
		{"single pixel", types.FaceCandidate{X: 5, Y: 5, Width: 1, Height: 1}},
		{"exact", types.FaceCandidate{X: 0, Y: 0, Width: 48, Height: 48}},
		{"clipped", types.FaceCandidate{X: 600, Y: 440, Width: 100, Height: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := n.Normalize(frame, tt.c)
			require.NoError(t, err)
			assertNormalized(t, tensor)
		})
	}
}

func TestNormalizeScalesIntensities(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 96, 96))
	for i := range frame.Pix {
		frame.Pix[i] = 255
	}
	frame.Pix[0] = 0

	tensor, err := New().Normalize(frame, types.FaceCandidate{X: 48, Y: 48, Width: 48, Height: 48})
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.Equal(t, float32(1.0), v)
	}

	black := image.NewGray(image.Rect(0, 0, 10, 10))
	tensor, err = New().Normalize(black, types.FaceCandidate{X: 0, Y: 0, Width: 10, Height: 10})
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.Equal(t, float32(0), v)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := New()
	first, err := n.Normalize(createTestFrame(320, 240), types.FaceCandidate{X: 40, Y: 30, Width: 150, Height: 150})
	require.NoError(t, err)

	region, err := first.Image()
	require.NoError(t, err)

	second, err := n.Normalize(region, types.FaceCandidate{X: 0, Y: 0, Width: 48, Height: 48})
	require.NoError(t, err)

	assertNormalized(t, second)
	assert.Equal(t, first.Shape, second.Shape)
	for i := range first.Data {
		assert.InDelta(t, first.Data[i], second.Data[i], 1.0/255.0)
	}
}

func TestNormalizeInvalidRegion(t *testing.T) {
	n := New()
	frame := createTestFrame(100, 100)

	for _, c := range []types.FaceCandidate{
		{X: 10, Y: 10, Width: 0, Height: 20},
		{X: 10, Y: 10, Width: 20, Height: 0},
		{X: 10, Y: 10, Width: -5, Height: 20},
		{X: 200, Y: 200, Width: 20, Height: 20},
	} {
		_, err := n.Normalize(frame, c)
		var regionErr *types.InvalidRegionError
		assert.True(t, errors.As(err, &regionErr), "candidate %+v: %v", c, err)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New()
	frame := createTestFrame(200, 200)
	c := types.FaceCandidate{X: 13, Y: 27, Width: 91, Height: 77}

	a, err := n.Normalize(frame, c)
	require.NoError(t, err)
	b, err := n.Normalize(frame, c)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTensorValidate(t *testing.T) {
	assert.NoError(t, NewTensor(1, 48, 48, 1).Validate())

	var shapeErr *types.ShapeMismatchError
	assert.True(t, errors.As(NewTensor(1, 32, 32, 1).Validate(), &shapeErr))
	assert.Equal(t, []int{1, 32, 32, 1}, shapeErr.Got)

	short := NewTensor(1, 48, 48, 1)
	short.Data = short.Data[:100]
	assert.True(t, errors.As(short.Validate(), &shapeErr))

	_, err := NewTensor(48, 48).Image()
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, imaging.Linear.Support, f.Support)

	for _, name := range []string{"nearest", "box", "cubic", "lanczos", "Bilinear"} {
		_, err := ParseFilter(name)
		assert.NoError(t, err, name)
	}

	_, err = ParseFilter("sinc")
	assert.Error(t, err)
}

func BenchmarkNormalize(b *testing.B) {
	n := New()
	frame := createTestFrame(640, 480)
	c := types.FaceCandidate{X: 200, Y: 100, Width: 220, Height: 220}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = n.Normalize(frame, c)
	}
}
