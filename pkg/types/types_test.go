package types

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmotionOrder(t *testing.T) {
	want := []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

	require.Equal(t, len(want), NumEmotions)
	for i, label := range want {
		e, err := EmotionAt(i)
		require.NoError(t, err)
		assert.Equal(t, label, string(e))
		assert.Equal(t, i, e.Index())
	}

	_, err := EmotionAt(7)
	assert.Error(t, err)
	_, err = EmotionAt(-1)
	assert.Error(t, err)
	assert.Equal(t, -1, Emotion("bored").Index())
}

func TestFaceCandidate(t *testing.T) {
	c := FaceCandidate{X: 10, Y: 20, Width: 100, Height: 80}

	x, y := c.Center()
	assert.Equal(t, 60, x)
	assert.Equal(t, 60, y)
	assert.Equal(t, 8000, c.Area())
	assert.Equal(t, image.Rect(10, 20, 110, 100), c.Rect())

	tests := []struct {
		name string
		c    FaceCandidate
		w, h int
		want bool
	}{
		{"inside", c, 200, 200, true},
		{"exact fit", c, 110, 100, true},
		{"too wide", c, 109, 100, false},
		{"negative", FaceCandidate{X: -1, Y: 0, Width: 5, Height: 5}, 10, 10, false},
		{"empty", FaceCandidate{X: 0, Y: 0, Width: 0, Height: 5}, 10, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Within(tt.w, tt.h))
		})
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("illegal base64 data at input byte 4")
	var err error = fmt.Errorf("stage: %w", &DecodeError{Cause: cause})

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "illegal base64")

	assert.Equal(t, "invalid frame: 0x10", (&InvalidFrameError{Width: 0, Height: 10}).Error())
	assert.Contains(t, (&InvalidRegionError{Rect: image.Rect(1, 1, 1, 5)}).Error(), "zero area")
	assert.Equal(t, "shape mismatch: got [1 2], want [7]", (&ShapeMismatchError{Got: []int{1, 2}, Want: []int{7}}).Error())
}
