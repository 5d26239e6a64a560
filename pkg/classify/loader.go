package classify

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/menta2k/mood-detector/pkg/cropper"
)

// LoadNetwork reads a Keras Sequential descriptor (the output of
// model.to_json()) and the matching weights blob. The blob is every array of
// model.get_weights(), in order, flattened as little-endian float32.
func LoadNetwork(descriptorPath, weightsPath string) (*Network, error) {
	descriptor, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model descriptor: %w", err)
	}

	f, err := os.Open(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights: %w", err)
	}
	defer f.Close()

	n, err := ParseNetwork(descriptor, bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(descriptorPath), err)
	}

	var size uint64
	if info, err := f.Stat(); err == nil {
		size = uint64(info.Size())
	}
	log.Infof("classify: loaded %s with %d layers, %s parameters (%s)",
		filepath.Base(descriptorPath), n.Layers(), humanize.Comma(int64(n.Params())), humanize.Bytes(size))

	return n, nil
}

// ParseNetwork builds a network from descriptor JSON and a weights stream.
// The stream must hold exactly the parameters the descriptor declares.
func ParseNetwork(descriptor []byte, weights io.Reader) (*Network, error) {
	if !gjson.ValidBytes(descriptor) {
		return nil, errors.New("model descriptor is not valid JSON")
	}
	doc := gjson.ParseBytes(descriptor)

	if class := doc.Get("class_name").String(); class != "" && class != "Sequential" {
		return nil, fmt.Errorf("unsupported model class %q", class)
	}

	layerDocs := doc.Get("config.layers")
	if !layerDocs.Exists() && doc.Get("config").IsArray() {
		// Keras 2.0 stored the layer list directly under config.
		layerDocs = doc.Get("config")
	}
	if !layerDocs.IsArray() || len(layerDocs.Array()) == 0 {
		return nil, errors.New("model descriptor has no layers")
	}

	var inputShape []int
	var descs []gjson.Result
	for _, l := range layerDocs.Array() {
		if inputShape == nil {
			inputShape = batchShape(l.Get("config"))
		}
		if l.Get("class_name").String() == "InputLayer" {
			continue
		}
		descs = append(descs, l)
	}
	if inputShape == nil {
		inputShape = cropper.InputShape
	}
	if len(inputShape) < 2 {
		return nil, fmt.Errorf("invalid input shape %v", inputShape)
	}

	wr := &weightReader{r: weights}
	shape := inputShape[1:]
	layers := make([]Layer, 0, len(descs))
	for i, desc := range descs {
		layer, err := decodeLayer(desc, shape, wr)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, desc.Get("class_name").String(), err)
		}
		if shape, err = layer.build(shape); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Kind(), err)
		}
		layers = append(layers, layer)
	}

	if err := wr.drained(); err != nil {
		return nil, err
	}

	return NewNetwork(inputShape, layers...)
}

func decodeLayer(desc gjson.Result, in []int, wr *weightReader) (Layer, error) {
	cfg := desc.Get("config")
	class := desc.Get("class_name").String()

	switch class {
	case "Conv2D":
		if len(in) != 3 {
			return nil, fmt.Errorf("expected a [h w c] feature map, got %v", in)
		}
		act, err := ParseActivation(cfg.Get("activation").String())
		if err != nil {
			return nil, err
		}
		l := &Conv2D{
			Filters:    int(cfg.Get("filters").Int()),
			KernelSize: pair(cfg.Get("kernel_size"), [2]int{3, 3}),
			Strides:    pair(cfg.Get("strides"), [2]int{1, 1}),
			Padding:    stringOr(cfg.Get("padding"), "valid"),
			Activation: act,
		}
		if l.Filters <= 0 {
			return nil, fmt.Errorf("invalid filters %d", l.Filters)
		}
		if l.Kernel, err = wr.read(l.KernelSize[0] * l.KernelSize[1] * in[2] * l.Filters); err != nil {
			return nil, err
		}
		if useBias(cfg) {
			if l.Bias, err = wr.read(l.Filters); err != nil {
				return nil, err
			}
		}
		return l, nil

	case "MaxPooling2D", "AveragePooling2D":
		pool := pair(cfg.Get("pool_size"), [2]int{2, 2})
		return &Pool2D{
			Average:  class == "AveragePooling2D",
			PoolSize: pool,
			Strides:  pair(cfg.Get("strides"), pool),
			Padding:  stringOr(cfg.Get("padding"), "valid"),
		}, nil

	case "Dense":
		if len(in) != 1 {
			return nil, fmt.Errorf("expected a flat input, got %v (missing Flatten?)", in)
		}
		act, err := ParseActivation(cfg.Get("activation").String())
		if err != nil {
			return nil, err
		}
		l := &Dense{Units: int(cfg.Get("units").Int()), Activation: act}
		if l.Units <= 0 {
			return nil, fmt.Errorf("invalid units %d", l.Units)
		}
		if l.Kernel, err = wr.read(in[0] * l.Units); err != nil {
			return nil, err
		}
		if useBias(cfg) {
			if l.Bias, err = wr.read(l.Units); err != nil {
				return nil, err
			}
		}
		return l, nil

	case "Flatten":
		return &Flatten{}, nil

	case "Dropout":
		return &Dropout{Rate: cfg.Get("rate").Float()}, nil

	case "Activation":
		act, err := ParseActivation(cfg.Get("activation").String())
		if err != nil {
			return nil, err
		}
		return &ActivationLayer{Fn: act}, nil

	default:
		return nil, fmt.Errorf("unsupported layer type %q", class)
	}
}

// batchShape reads the declared input shape, mapping the null batch size to 1.
func batchShape(cfg gjson.Result) []int {
	for _, key := range []string{"batch_input_shape", "batch_shape"} {
		v := cfg.Get(key)
		if !v.IsArray() {
			continue
		}
		dims := v.Array()
		shape := make([]int, len(dims))
		for i, d := range dims {
			if d.Type == gjson.Null {
				shape[i] = 1
				continue
			}
			shape[i] = int(d.Int())
		}
		return shape
	}
	return nil
}

func pair(v gjson.Result, def [2]int) [2]int {
	switch {
	case v.IsArray():
		a := v.Array()
		if len(a) == 2 {
			return [2]int{int(a[0].Int()), int(a[1].Int())}
		}
	case v.Type == gjson.Number:
		return [2]int{int(v.Int()), int(v.Int())}
	}
	return def
}

func stringOr(v gjson.Result, def string) string {
	if v.Type != gjson.String || v.String() == "" {
		return def
	}
	return v.String()
}

func useBias(cfg gjson.Result) bool {
	v := cfg.Get("use_bias")
	return !v.Exists() || v.Bool()
}

type weightReader struct {
	r     io.Reader
	count int
}

func (w *weightReader) read(n int) ([]float32, error) {
	buf := make([]float32, n)
	if err := binary.Read(w.r, binary.LittleEndian, buf); err != nil {
		return nil, fmt.Errorf("weights blob too short after %d values: %w", w.count, err)
	}
	w.count += n
	return buf, nil
}

func (w *weightReader) drained() error {
	var b [1]byte
	switch _, err := io.ReadFull(w.r, b[:]); {
	case err == io.EOF:
		return nil
	case err != nil:
		return fmt.Errorf("read weights: %w", err)
	default:
		return fmt.Errorf("weights blob has data beyond the %d declared values", w.count)
	}
}
