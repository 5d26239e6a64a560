package mooddetector

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mood-detector/internal/config"
	"github.com/menta2k/mood-detector/pkg/classify"
	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/detection"
	"github.com/menta2k/mood-detector/pkg/types"
)

// fakeCascade reports fixed rectangles regardless of the frame content.
type fakeCascade struct {
	rects []image.Rectangle
}

func (f fakeCascade) Detect(frame *image.Gray, cfg detection.Config) ([]image.Rectangle, error) {
	return f.rects, nil
}

// brightnessClassifier labels a region by its mean intensity.
type brightnessClassifier struct {
	calls atomic.Int32
	err   error
}

func (b *brightnessClassifier) Predict(ctx context.Context, region cropper.Tensor) ([]float32, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	var mean float64
	for _, v := range region.Data {
		mean += float64(v)
	}
	mean /= float64(len(region.Data))

	probs := make([]float32, types.NumEmotions)
	probs[int(math.Min(mean*float64(types.NumEmotions), float64(types.NumEmotions-1)))] = 1
	return probs, nil
}

// createTestFrame paints each rectangle with its own gray level.
func createTestFrame(width, height int, rects []image.Rectangle, levels []uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{levels[i], levels[i], levels[i], 255})
			}
		}
	}
	return img
}

func encodePayload(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testNetwork(t *testing.T) *classify.Network {
	t.Helper()
	kernel := make([]float32, 36*7)
	for i := range kernel {
		kernel[i] = float32(math.Cos(float64(i) * 0.61))
	}
	n, err := classify.NewNetwork(cropper.InputShape,
		&classify.Pool2D{Average: true, PoolSize: [2]int{8, 8}},
		&classify.Flatten{},
		&classify.Dense{Units: 7, Kernel: kernel},
	)
	require.NoError(t, err)
	return n
}

var faceRects = []image.Rectangle{
	image.Rect(10, 10, 70, 70),
	image.Rect(100, 20, 150, 70),
	image.Rect(20, 100, 60, 140),
	image.Rect(120, 100, 180, 160),
}

func TestProcessFrameOrderAndLabels(t *testing.T) {
	// Levels map to classes 6, 0, 3 and 5.
	levels := []uint8{250, 10, 128, 200}
	payload := encodePayload(t, createTestFrame(200, 180, faceRects, levels))

	for _, workers := range []int{1, 4} {
		classifier := &brightnessClassifier{}
		p := New(detection.New(fakeCascade{rects: faceRects}), classifier, WithWorkers(workers))

		result, err := p.ProcessFrame(context.Background(), payload)
		require.NoError(t, err)
		require.Len(t, result.BoundingBoxes, len(faceRects))
		assert.Equal(t, int32(len(faceRects)), classifier.calls.Load())

		want := []types.Emotion{types.Surprise, types.Angry, types.Happy, types.Sad}
		for i, face := range result.BoundingBoxes {
			assert.Equal(t, faceRects[i].Min.X, face.X)
			assert.Equal(t, faceRects[i].Min.Y, face.Y)
			assert.Equal(t, faceRects[i].Dx(), face.Width)
			assert.Equal(t, faceRects[i].Dy(), face.Height)
			assert.Equal(t, want[i], face.Mood, "workers=%d face %d", workers, i)
		}
	}
}

func TestProcessFrameTransparentPixel(t *testing.T) {
	payload := encodePayload(t, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	classifier := &brightnessClassifier{}
	p := New(detection.New(fakeCascade{rects: faceRects}), classifier)

	result, err := p.ProcessFrame(context.Background(), payload)
	require.NoError(t, err)
	assert.NotNil(t, result.BoundingBoxes)
	assert.Empty(t, result.BoundingBoxes)
	assert.Equal(t, int32(0), classifier.calls.Load())
}

func TestProcessFrameSingleFace(t *testing.T) {
	rect := image.Rect(40, 30, 140, 130)
	payload := encodePayload(t, createTestFrame(200, 160, []image.Rectangle{rect}, []uint8{180}))

	p := New(detection.New(fakeCascade{rects: []image.Rectangle{rect}}), testNetwork(t))
	result, err := p.ProcessFrame(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, result.BoundingBoxes, 1)
	assert.GreaterOrEqual(t, result.BoundingBoxes[0].Mood.Index(), 0)
}

func TestProcessFrameDeterministic(t *testing.T) {
	levels := []uint8{30, 90, 150, 210}
	payload := encodePayload(t, createTestFrame(200, 180, faceRects, levels))
	p := New(detection.New(fakeCascade{rects: faceRects}), testNetwork(t), WithWorkers(3))

	first, err := p.ProcessFrame(context.Background(), payload)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.ProcessFrame(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestProcessFrameErrors(t *testing.T) {
	p := New(detection.New(fakeCascade{rects: faceRects}), &brightnessClassifier{})

	var decodeErr *types.DecodeError
	_, err := p.ProcessFrame(context.Background(), "no separator here")
	assert.True(t, errors.As(err, &decodeErr))

	_, err = p.ProcessFrame(context.Background(), "data:image/png;base64,@@@@")
	assert.True(t, errors.As(err, &decodeErr))

	_, err = p.ProcessFrame(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("not an image")))
	assert.True(t, errors.As(err, &decodeErr))

	_, err = p.ProcessImage(context.Background(), nil)
	var frameErr *types.InvalidFrameError
	assert.True(t, errors.As(err, &frameErr))

	failing := New(detection.New(fakeCascade{rects: faceRects}), &brightnessClassifier{err: errors.New("model offline")}, WithWorkers(2))
	payload := encodePayload(t, createTestFrame(200, 180, nil, nil))
	result, err := failing.ProcessFrame(context.Background(), payload)
	assert.ErrorContains(t, err, "model offline")
	assert.Nil(t, result.BoundingBoxes)
}

func TestAggregate(t *testing.T) {
	candidates := []types.FaceCandidate{{X: 1, Y: 2, Width: 3, Height: 4}, {X: 5, Y: 6, Width: 7, Height: 8}}
	predictions := []types.EmotionPrediction{{Label: types.Fear, Index: 2}, {Label: types.Neutral, Index: 4}}

	result, err := Aggregate(candidates, predictions)
	require.NoError(t, err)
	assert.Equal(t, []types.AnnotatedFace{
		{X: 1, Y: 2, Width: 3, Height: 4, Mood: types.Fear},
		{X: 5, Y: 6, Width: 7, Height: 8, Mood: types.Neutral},
	}, result.BoundingBoxes)

	empty, err := Aggregate(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty.BoundingBoxes)

	_, err = Aggregate(candidates, predictions[:1])
	assert.Error(t, err)
}

func TestNewClassifier(t *testing.T) {
	cfg := config.Default().Classifier

	cfg.Backend = config.BackendOllama
	c, err := NewClassifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &classify.Remote{}, c)

	cfg.Backend = config.BackendLlamaCpp
	c, err = NewClassifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &classify.Remote{}, c)

	cfg.Backend = config.BackendNetwork
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	c, err = NewClassifier(cfg)
	assert.Error(t, err)
	assert.Nil(t, c)

	cfg.Backend = config.BackendTFLite
	cfg.TFLitePath = filepath.Join(t.TempDir(), "missing.tflite")
	c, err = NewClassifier(cfg)
	assert.Error(t, err)
	assert.Nil(t, c)

	cfg.Backend = "onnx"
	_, err = NewClassifier(cfg)
	assert.Error(t, err)
}

// closingClassifier records Close calls.
type closingClassifier struct {
	brightnessClassifier
	closed int
}

func (c *closingClassifier) Close() error {
	c.closed++
	return errors.New("already released")
}

func TestPipelineCloseReleasesClassifier(t *testing.T) {
	classifier := &closingClassifier{}
	p := New(detection.New(fakeCascade{}), classifier)

	err := p.Close()
	assert.ErrorContains(t, err, "already released")
	assert.Equal(t, 1, classifier.closed)

	assert.NoError(t, New(detection.New(fakeCascade{}), &brightnessClassifier{}).Close())
}

func TestProcessFrameFacefinder(t *testing.T) {
	backend, err := detection.LoadBackend(filepath.Join("pkg", "detection", "testdata", "facefinder"))
	require.NoError(t, err)
	jpeg, err := os.ReadFile(filepath.Join("pkg", "detection", "testdata", "sample.jpg"))
	require.NoError(t, err)
	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	// Default scan parameters: scale factor 1.3, min neighbors 5.
	p := New(detection.New(backend), testNetwork(t), WithWorkers(2))
	defer p.Close()

	result, err := p.ProcessFrame(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, result.BoundingBoxes, 1)

	face := result.BoundingBoxes[0]
	assert.InDelta(t, 42, face.X, 4)
	assert.InDelta(t, 85, face.Y, 4)
	assert.InDelta(t, 230, face.Width, 4)
	assert.Contains(t, Labels(), string(face.Mood))
}

func TestFromConfigMissingCascade(t *testing.T) {
	cfg := config.Default()
	cfg.Detector.CascadePath = filepath.Join(t.TempDir(), "facefinder")
	_, err := FromConfig(cfg)
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}, Labels())
	assert.Equal(t, Version, GetVersion())
}

func BenchmarkProcessFrame(b *testing.B) {
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	p := New(detection.New(fakeCascade{rects: faceRects}), &brightnessClassifier{}, WithWorkers(4))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.ProcessFrame(ctx, payload)
	}
}
