package classify

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/types"
)

// Network is a sequential feed-forward model. It is immutable once built and
// safe for concurrent use.
type Network struct {
	inputShape []int
	layers     []Layer
	shapes     [][]int
	params     int
	softmax    bool
}

// NewNetwork validates the layer stack against inputShape (batch first) and
// returns a ready network. The final layer must emit one value per emotion.
func NewNetwork(inputShape []int, layers ...Layer) (*Network, error) {
	if len(inputShape) < 2 || inputShape[0] != 1 {
		return nil, fmt.Errorf("network input shape %v must start with a batch dimension of 1", inputShape)
	}

	n := &Network{
		inputShape: append([]int(nil), inputShape...),
		layers:     layers,
		shapes:     make([][]int, 0, len(layers)),
	}

	shape := n.inputShape[1:]
	for i, l := range layers {
		out, err := l.build(shape)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
		n.shapes = append(n.shapes, out)
		n.params += l.params()
		shape = out
	}

	if len(shape) != 1 || shape[0] != types.NumEmotions {
		return nil, &types.ShapeMismatchError{Got: shape, Want: []int{types.NumEmotions}}
	}
	n.softmax = !endsWithSoftmax(layers)

	return n, nil
}

// InputShape returns the expected input shape, batch dimension included.
func (n *Network) InputShape() []int {
	return append([]int(nil), n.inputShape...)
}

// Params returns the number of trainable parameters.
func (n *Network) Params() int {
	return n.params
}

// Layers returns the number of layers.
func (n *Network) Layers() int {
	return len(n.layers)
}

// Summary lists each layer with its output shape.
func (n *Network) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input %v\n", n.inputShape)
	for i, l := range n.layers {
		fmt.Fprintf(&b, "%-18s %v\n", l.Kind(), n.shapes[i])
	}
	return b.String()
}

// Predict runs a forward pass and returns the emotion probabilities.
func (n *Network) Predict(ctx context.Context, region cropper.Tensor) ([]float32, error) {
	if !region.HasShape(n.inputShape...) {
		return nil, &types.ShapeMismatchError{Got: append([]int(nil), region.Shape...), Want: n.InputShape()}
	}

	x := cropper.Tensor{Shape: n.inputShape[1:], Data: region.Data}
	for _, l := range n.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x = l.forward(x)
	}

	out := append([]float32(nil), x.Data...)
	if n.softmax {
		softmax(out)
	}
	return out, nil
}

// WriteWeights serializes all parameters as little-endian float32 in layer
// order, kernel before bias. LoadNetwork reads the same layout.
func (n *Network) WriteWeights(w io.Writer) error {
	for i, l := range n.layers {
		var blocks [][]float32
		switch layer := l.(type) {
		case *Conv2D:
			blocks = [][]float32{layer.Kernel, layer.Bias}
		case *Dense:
			blocks = [][]float32{layer.Kernel, layer.Bias}
		}
		for _, block := range blocks {
			if len(block) == 0 {
				continue
			}
			if err := binary.Write(w, binary.LittleEndian, block); err != nil {
				return fmt.Errorf("write layer %d weights: %w", i, err)
			}
		}
	}
	return nil
}

func endsWithSoftmax(layers []Layer) bool {
	for i := len(layers) - 1; i >= 0; i-- {
		switch l := layers[i].(type) {
		case *Dropout:
			continue
		case *Dense:
			return l.Activation == Softmax
		case *Conv2D:
			return l.Activation == Softmax
		case *ActivationLayer:
			return l.Fn == Softmax
		default:
			return false
		}
	}
	return false
}
