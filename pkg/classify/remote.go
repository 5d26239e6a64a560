package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/menta2k/mood-detector/pkg/client"
	"github.com/menta2k/mood-detector/pkg/cropper"
)

// remoteImageSize is the side of the crop sent to vision models, which
// handle 48 pixel inputs poorly.
const remoteImageSize = 192

// Remote scores regions with a vision language model.
type Remote struct {
	client client.MoodClient
	model  string
	prompt string
}

// NewRemote creates a Remote classifier using the default emotion prompt.
func NewRemote(c client.MoodClient, model string) *Remote {
	return &Remote{client: c, model: model, prompt: client.EmotionPrompt}
}

// WithPrompt returns a copy of r that sends prompt instead of the default.
func (r *Remote) WithPrompt(prompt string) *Remote {
	cp := *r
	cp.prompt = prompt
	return &cp
}

// Predict renders the region as PNG, queries the model and maps the reply to
// a probability vector.
func (r *Remote) Predict(ctx context.Context, region cropper.Tensor) ([]float32, error) {
	img, err := region.Image()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	scaled := imaging.Resize(img, remoteImageSize, remoteImageSize, imaging.Lanczos)
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}

	raw, err := r.client.Query(ctx, r.model, r.prompt, base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("remote classifier %s: %w", r.model, err)
	}
	log.Debugf("classify: %s replied %q", r.model, raw)

	probs, err := client.ParseScores(raw)
	if err != nil {
		return nil, fmt.Errorf("remote classifier %s: %w", r.model, err)
	}
	return probs, nil
}
