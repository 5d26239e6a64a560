//go:build tflite
// +build tflite

package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/types"
)

// tfliteModel returns the converted emotion model named by MOOD_TFLITE_MODEL.
func tfliteModel(t *testing.T) *TFLite {
	t.Helper()
	path := os.Getenv("MOOD_TFLITE_MODEL")
	if path == "" {
		t.Skip("MOOD_TFLITE_MODEL not set")
	}
	m, err := NewTFLite(path, 2)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewTFLiteMissingFile(t *testing.T) {
	_, err := LoadTFLite(filepath.Join(t.TempDir(), "none.tflite"), 1)
	assert.Error(t, err)
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, uint8(0), quantize(0, 1.0/255, 0))
	assert.Equal(t, uint8(255), quantize(1, 1.0/255, 0))
	assert.Equal(t, uint8(255), quantize(2, 1.0/255, 0))
	assert.Equal(t, uint8(128), quantize(0, 0.5, 128))
	assert.Equal(t, uint8(255), quantize(1, 0, 0))

	assert.InDelta(t, 1.0, dequantize(255, 1.0/255, 0), 1e-6)
	assert.InDelta(t, -1.0, dequantize(0, 1.0/128, 128), 1e-6)
	assert.InDelta(t, 0.0, dequantize(0, 0, 0), 1e-6)
}

func TestTFLitePredict(t *testing.T) {
	m := tfliteModel(t)
	region := gradientRegion()

	probs, err := m.Predict(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, probs, types.NumEmotions)
	assert.InDelta(t, 1.0, sum(probs), 1e-3)

	again, err := m.Predict(context.Background(), region)
	require.NoError(t, err)
	assert.Equal(t, probs, again)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Predict(context.Background(), region)
			assert.NoError(t, err)
			assert.Equal(t, probs, got)
		}()
	}
	wg.Wait()
}

func TestTFLitePredictErrors(t *testing.T) {
	m := tfliteModel(t)

	var shapeErr *types.ShapeMismatchError
	_, err := m.Predict(context.Background(), cropper.NewTensor(1, 24, 24, 1))
	assert.True(t, errors.As(err, &shapeErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Predict(ctx, gradientRegion())
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, m.Close())
	_, err = m.Predict(context.Background(), gradientRegion())
	assert.Error(t, err)
}
