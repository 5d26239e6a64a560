// Package mooddetector finds faces in video frames and labels each with the
// emotion it expresses.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		mooddetector "github.com/menta2k/mood-detector"
//		"github.com/menta2k/mood-detector/internal/config"
//	)
//
//	func main() {
//		p, err := mooddetector.FromConfig(config.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer p.Close()
//
//		result, err := p.ProcessFrame(context.Background(), "data:image/png;base64,iVBORw0...")
//		if err != nil {
//			log.Fatal(err)
//		}
//		for _, face := range result.BoundingBoxes {
//			fmt.Printf("%dx%d at (%d,%d): %s\n", face.Width, face.Height, face.X, face.Y, face.Mood)
//		}
//	}
//
// A frame passes through five stages:
//
// 1. Frame decoding (pkg/processing): data-URL payload to pixels and grayscale
// 2. Face localization (pkg/detection): cascade scan for frontal faces
// 3. Region normalization (pkg/cropper): crop, resample to 48x48, scale to [0, 1]
// 4. Emotion classification (pkg/classify): probabilities over seven labels
// 5. Aggregation: faces paired with their label in detection order
//
// The loaded cascade and classifier are shared read-only between requests;
// nothing is cached between frames.
package mooddetector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/mood-detector/internal/config"
	"github.com/menta2k/mood-detector/pkg/classify"
	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/detection"
	"github.com/menta2k/mood-detector/pkg/llamacpp"
	"github.com/menta2k/mood-detector/pkg/ollama"
	"github.com/menta2k/mood-detector/pkg/processing"
	"github.com/menta2k/mood-detector/pkg/types"
)

// Version of the mood detector library
const Version = "1.0.0"

// Pipeline runs the per-frame inference chain. It is safe for concurrent use.
type Pipeline struct {
	processor  *processing.Processor
	localizer  *detection.Localizer
	normalizer *cropper.Normalizer
	classifier classify.Classifier
	workers    int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many faces of one frame are classified in parallel.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithNormalizer replaces the default bilinear region normalizer.
func WithNormalizer(n *cropper.Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// New creates a Pipeline from a loaded localizer and classifier.
func New(localizer *detection.Localizer, classifier classify.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		processor:  processing.NewProcessor(),
		localizer:  localizer,
		normalizer: cropper.New(),
		classifier: classifier,
		workers:    1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig loads the cascade and the configured classifier backend.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	backend, err := detection.LoadBackend(cfg.Detector.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load cascade: %w", err)
	}

	classifier, err := NewClassifier(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	filter, err := cropper.ParseFilter(cfg.Classifier.Filter)
	if err != nil {
		return nil, err
	}

	return New(
		detection.NewWithConfig(backend, cfg.Detector.Detection()),
		classifier,
		WithWorkers(cfg.Pipeline.Workers),
		WithNormalizer(cropper.NewWithConfig(cropper.Config{Filter: filter})),
	), nil
}

// NewClassifier builds the classifier backend named in cfg.
func NewClassifier(cfg config.ClassifierConfig) (classify.Classifier, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return classify.NewRemote(c, cfg.RemoteModel), nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return classify.NewRemote(c, cfg.RemoteModel), nil
	case config.BackendTFLite:
		c, err := classify.LoadTFLite(cfg.TFLitePath, cfg.Threads)
		if err != nil {
			return nil, fmt.Errorf("failed to load emotion model: %w", err)
		}
		return c, nil
	case config.BackendNetwork, "":
		n, err := classify.LoadNetwork(cfg.ModelPath, cfg.WeightsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load emotion model: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

// Close releases native detector and classifier resources.
func (p *Pipeline) Close() error {
	err := p.localizer.Close()
	if c, ok := p.classifier.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Processor returns the frame decoder used by the pipeline.
func (p *Pipeline) Processor() *processing.Processor {
	return p.processor
}

// ProcessFrame decodes a "<prefix>,<base64>" payload and annotates its faces.
func (p *Pipeline) ProcessFrame(ctx context.Context, payload string) (types.FrameResult, error) {
	img, err := p.processor.DecodePayload(payload)
	if err != nil {
		return types.FrameResult{}, err
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage annotates the faces of a decoded frame. The first failing face
// fails the whole frame.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (types.FrameResult, error) {
	if img == nil {
		return types.FrameResult{}, &types.InvalidFrameError{}
	}

	gray := p.processor.ToGrayscale(img)

	candidates, err := p.localizer.Detect(gray)
	if err != nil {
		return types.FrameResult{}, err
	}

	predictions, err := p.classifyAll(ctx, gray, candidates)
	if err != nil {
		return types.FrameResult{}, err
	}

	return Aggregate(candidates, predictions)
}

func (p *Pipeline) classifyAll(ctx context.Context, gray *image.Gray, candidates []types.FaceCandidate) ([]types.EmotionPrediction, error) {
	predictions := make([]types.EmotionPrediction, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range candidates {
		g.Go(func() error {
			region, err := p.normalizer.Normalize(gray, c)
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			prediction, err := classify.Classify(ctx, p.classifier, region)
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			predictions[i] = prediction
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return predictions, nil
}

// Aggregate pairs candidates with predictions in order. No sorting or
// deduplication is applied.
func Aggregate(candidates []types.FaceCandidate, predictions []types.EmotionPrediction) (types.FrameResult, error) {
	if len(candidates) != len(predictions) {
		return types.FrameResult{}, fmt.Errorf("aggregate: %d candidates but %d predictions", len(candidates), len(predictions))
	}

	boxes := make([]types.AnnotatedFace, 0, len(candidates))
	for i, c := range candidates {
		boxes = append(boxes, types.AnnotatedFace{
			X:      c.X,
			Y:      c.Y,
			Width:  c.Width,
			Height: c.Height,
			Mood:   predictions[i].Label,
		})
	}
	return types.FrameResult{BoundingBoxes: boxes}, nil
}

// Labels returns the emotion labels in classifier output order.
func Labels() []string {
	labels := make([]string, 0, types.NumEmotions)
	for _, e := range types.Emotions {
		labels = append(labels, string(e))
	}
	return labels
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
