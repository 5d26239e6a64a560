//go:build tflite
// +build tflite

package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/xnnpack"

	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/types"
)

// xnnpackThreads is the thread count of the XNNPACK delegate.
const xnnpackThreads = 2

// TFLite runs a TensorFlow Lite model with a [1 48 48 1] input and a
// [1 7] softmax output. The interpreter is not reentrant, so predictions
// are serialized.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputShape  []int
}

// NewTFLite loads the model at path and allocates its tensors.
func NewTFLite(path string, threads int) (*TFLite, error) {
	if threads < 1 {
		threads = 1
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("failed to load tflite model %s", path)
	}

	options := tflite.NewInterpreterOptions()
	options.AddDelegate(xnnpack.New(xnnpack.DelegateOptions{NumThreads: xnnpackThreads}))
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Warnf("classify: tflite: %s", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("failed to create tflite interpreter for %s", path)
	}

	t := &TFLite{model: model, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		t.Close()
		return nil, fmt.Errorf("failed to allocate tflite tensors: %v", status)
	}

	if err := t.checkTensors(); err != nil {
		t.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	log.Infof("classify: loaded %s, input %v, %d threads", filepath.Base(path), t.inputShape, threads)
	return t, nil
}

func (t *TFLite) checkTensors() error {
	in := t.interpreter.GetInputTensor(0)
	shape := make([]int, in.NumDims())
	for i := range shape {
		shape[i] = in.Dim(i)
	}
	if !cropper.NewTensor(shape...).HasShape(cropper.InputShape...) {
		return &types.ShapeMismatchError{Got: shape, Want: cropper.InputShape}
	}
	if typ := in.Type(); typ != tflite.Float32 && typ != tflite.UInt8 {
		return fmt.Errorf("unsupported input type %v", typ)
	}

	out := t.interpreter.GetOutputTensor(0)
	if n := out.Dim(out.NumDims() - 1); n != types.NumEmotions {
		return &types.ShapeMismatchError{Got: []int{n}, Want: []int{types.NumEmotions}}
	}
	if typ := out.Type(); typ != tflite.Float32 && typ != tflite.UInt8 {
		return fmt.Errorf("unsupported output type %v", typ)
	}

	t.inputShape = shape
	return nil
}

// Predict runs one inference. Quantized uint8 models are fed and read through
// their tensor quantization parameters.
func (t *TFLite) Predict(ctx context.Context, region cropper.Tensor) (probs []float32, err error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, errors.New("tflite model is closed")
	}

	defer func() {
		if r := recover(); r != nil {
			probs, err = nil, fmt.Errorf("classify: %s (inference panic)\nstack: %s", r, debug.Stack())
		}
	}()

	in := t.interpreter.GetInputTensor(0)
	switch in.Type() {
	case tflite.Float32:
		copy(in.Float32s(), region.Data)
	case tflite.UInt8:
		q := in.QuantizationParams()
		buf := make([]uint8, len(region.Data))
		for i, v := range region.Data {
			buf[i] = quantize(v, q.Scale, q.ZeroPoint)
		}
		if status := in.CopyFromBuffer(buf); status != tflite.OK {
			return nil, fmt.Errorf("failed to copy input tensor: %v", status)
		}
	}

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tflite inference failed: %v", status)
	}

	out := t.interpreter.GetOutputTensor(0)
	probs = make([]float32, types.NumEmotions)
	switch out.Type() {
	case tflite.Float32:
		copy(probs, out.Float32s())
	case tflite.UInt8:
		q := out.QuantizationParams()
		for i, b := range out.UInt8s()[:types.NumEmotions] {
			probs[i] = dequantize(b, q.Scale, q.ZeroPoint)
		}
	}
	return probs, nil
}

// Close releases the interpreter and the model.
func (t *TFLite) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}

// quantize maps v in [0, 1] to a uint8 code. A zero scale means plain 0..255.
func quantize(v float32, scale float64, zeroPoint int) uint8 {
	if scale == 0 {
		scale, zeroPoint = 1.0/255, 0
	}
	q := math.Round(float64(v)/scale) + float64(zeroPoint)
	return uint8(math.Max(0, math.Min(255, q)))
}

func dequantize(b uint8, scale float64, zeroPoint int) float32 {
	if scale == 0 {
		scale, zeroPoint = 1.0/255, 0
	}
	return float32(scale * float64(int(b)-zeroPoint))
}
