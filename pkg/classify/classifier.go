// Package classify maps normalized face regions to emotion probabilities.
package classify

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/menta2k/mood-detector/internal/event"
	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/types"
)

var log = event.Log

// Classifier scores a normalized region. The returned slice holds one
// probability per emotion, aligned to types.Emotions.
type Classifier interface {
	Predict(ctx context.Context, region cropper.Tensor) ([]float32, error)
}

// Label picks the most probable emotion. Ties resolve to the lowest index.
func Label(probs []float32) (types.EmotionPrediction, error) {
	if len(probs) != types.NumEmotions {
		return types.EmotionPrediction{}, &types.ShapeMismatchError{
			Got:  []int{len(probs)},
			Want: []int{types.NumEmotions},
		}
	}

	scores := make([]float64, len(probs))
	for i, p := range probs {
		scores[i] = float64(p)
	}
	idx := floats.MaxIdx(scores)

	return types.EmotionPrediction{
		Label:         types.Emotions[idx],
		Index:         idx,
		Probabilities: append([]float32(nil), probs...),
	}, nil
}

// Classify runs c on region and labels the result.
func Classify(ctx context.Context, c Classifier, region cropper.Tensor) (types.EmotionPrediction, error) {
	if err := region.Validate(); err != nil {
		return types.EmotionPrediction{}, err
	}
	probs, err := c.Predict(ctx, region)
	if err != nil {
		return types.EmotionPrediction{}, err
	}
	return Label(probs)
}
