package classify

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/types"
)

// Layer is one stage of a sequential network. Shapes exclude the batch
// dimension: feature maps are [height, width, channels], vectors are [n].
type Layer interface {
	Kind() string

	// build validates the layer against its input shape and returns the output shape.
	build(in []int) ([]int, error)
	forward(in cropper.Tensor) cropper.Tensor
	params() int
}

// Conv2D is a 2D convolution with Keras kernel layout [kh][kw][in][filters].
type Conv2D struct {
	Filters    int
	KernelSize [2]int
	Strides    [2]int
	Padding    string
	Activation Activation
	Kernel     []float32
	Bias       []float32

	in, out         []int
	stride          [2]int
	padTop, padLeft int
}

func (l *Conv2D) Kind() string { return "Conv2D" }

func (l *Conv2D) params() int { return len(l.Kernel) + len(l.Bias) }

func (l *Conv2D) build(in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("expected a [h w c] feature map, got %v", in)
	}
	kh, kw := l.KernelSize[0], l.KernelSize[1]
	if l.Filters <= 0 || kh <= 0 || kw <= 0 {
		return nil, fmt.Errorf("invalid filters %d or kernel size %v", l.Filters, l.KernelSize)
	}

	l.stride = orDefault(l.Strides, [2]int{1, 1})
	oh, pt, err := windowDim(in[0], kh, l.stride[0], l.Padding)
	if err != nil {
		return nil, err
	}
	ow, pl, err := windowDim(in[1], kw, l.stride[1], l.Padding)
	if err != nil {
		return nil, err
	}

	if len(l.Kernel) != kh*kw*in[2]*l.Filters {
		return nil, &types.ShapeMismatchError{Got: []int{len(l.Kernel)}, Want: []int{kh, kw, in[2], l.Filters}}
	}
	if l.Bias != nil && len(l.Bias) != l.Filters {
		return nil, &types.ShapeMismatchError{Got: []int{len(l.Bias)}, Want: []int{l.Filters}}
	}

	l.in = append([]int(nil), in...)
	l.out = []int{oh, ow, l.Filters}
	l.padTop, l.padLeft = pt, pl
	return l.out, nil
}

func (l *Conv2D) forward(in cropper.Tensor) cropper.Tensor {
	h, w, cin := l.in[0], l.in[1], l.in[2]
	oh, ow, nf := l.out[0], l.out[1], l.out[2]
	kh, kw := l.KernelSize[0], l.KernelSize[1]

	out := cropper.NewTensor(l.out...)
	acc := make([]float32, nf)
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			if l.Bias != nil {
				copy(acc, l.Bias)
			} else {
				clear(acc)
			}
			for ky := 0; ky < kh; ky++ {
				iy := oy*l.stride[0] + ky - l.padTop
				if iy < 0 || iy >= h {
					continue
				}
				for kx := 0; kx < kw; kx++ {
					ix := ox*l.stride[1] + kx - l.padLeft
					if ix < 0 || ix >= w {
						continue
					}
					px := in.Data[(iy*w+ix)*cin : (iy*w+ix+1)*cin]
					k := l.Kernel[(ky*kw+kx)*cin*nf:]
					for c, v := range px {
						if v == 0 {
							continue
						}
						row := k[c*nf : (c+1)*nf]
						for f := range acc {
							acc[f] += v * row[f]
						}
					}
				}
			}
			copy(out.Data[(oy*ow+ox)*nf:], acc)
		}
	}

	l.Activation.apply(out.Data, nf)
	return out
}

// Pool2D is max or average pooling over spatial windows.
type Pool2D struct {
	Average  bool
	PoolSize [2]int
	Strides  [2]int
	Padding  string

	in, out         []int
	pool, stride    [2]int
	padTop, padLeft int
}

func (l *Pool2D) Kind() string {
	if l.Average {
		return "AveragePooling2D"
	}
	return "MaxPooling2D"
}

func (l *Pool2D) params() int { return 0 }

func (l *Pool2D) build(in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("expected a [h w c] feature map, got %v", in)
	}
	l.pool = orDefault(l.PoolSize, [2]int{2, 2})
	l.stride = orDefault(l.Strides, l.pool)

	oh, pt, err := windowDim(in[0], l.pool[0], l.stride[0], l.Padding)
	if err != nil {
		return nil, err
	}
	ow, pl, err := windowDim(in[1], l.pool[1], l.stride[1], l.Padding)
	if err != nil {
		return nil, err
	}

	l.in = append([]int(nil), in...)
	l.out = []int{oh, ow, in[2]}
	l.padTop, l.padLeft = pt, pl
	return l.out, nil
}

func (l *Pool2D) forward(in cropper.Tensor) cropper.Tensor {
	h, w, ch := l.in[0], l.in[1], l.in[2]
	oh, ow := l.out[0], l.out[1]

	out := cropper.NewTensor(l.out...)
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			for c := 0; c < ch; c++ {
				var sum float32
				peak := float32(math.Inf(-1))
				n := 0
				for py := 0; py < l.pool[0]; py++ {
					iy := oy*l.stride[0] + py - l.padTop
					if iy < 0 || iy >= h {
						continue
					}
					for px := 0; px < l.pool[1]; px++ {
						ix := ox*l.stride[1] + px - l.padLeft
						if ix < 0 || ix >= w {
							continue
						}
						v := in.Data[(iy*w+ix)*ch+c]
						sum += v
						if v > peak {
							peak = v
						}
						n++
					}
				}
				i := (oy*ow+ox)*ch + c
				switch {
				case n == 0:
					out.Data[i] = 0
				case l.Average:
					out.Data[i] = sum / float32(n)
				default:
					out.Data[i] = peak
				}
			}
		}
	}
	return out
}

// Dense is a fully connected layer with kernel layout [in][units].
type Dense struct {
	Units      int
	Activation Activation
	Kernel     []float32
	Bias       []float32

	inSize  int
	weights *mat.Dense
	bias    *mat.VecDense
}

func (l *Dense) Kind() string { return "Dense" }

func (l *Dense) params() int { return len(l.Kernel) + len(l.Bias) }

func (l *Dense) build(in []int) ([]int, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("expected a flat input, got %v (missing Flatten?)", in)
	}
	if l.Units <= 0 || in[0] <= 0 {
		return nil, fmt.Errorf("invalid units %d for input %v", l.Units, in)
	}
	if len(l.Kernel) != in[0]*l.Units {
		return nil, &types.ShapeMismatchError{Got: []int{len(l.Kernel)}, Want: []int{in[0], l.Units}}
	}
	if l.Bias != nil && len(l.Bias) != l.Units {
		return nil, &types.ShapeMismatchError{Got: []int{len(l.Bias)}, Want: []int{l.Units}}
	}

	l.inSize = in[0]
	l.weights = mat.NewDense(in[0], l.Units, widen(l.Kernel))
	l.bias = nil
	if l.Bias != nil {
		l.bias = mat.NewVecDense(l.Units, widen(l.Bias))
	}
	return []int{l.Units}, nil
}

func (l *Dense) forward(in cropper.Tensor) cropper.Tensor {
	x := mat.NewVecDense(l.inSize, widen(in.Data))

	var y mat.VecDense
	y.MulVec(l.weights.T(), x)
	if l.bias != nil {
		y.AddVec(&y, l.bias)
	}

	out := cropper.NewTensor(l.Units)
	for i := range out.Data {
		out.Data[i] = float32(y.AtVec(i))
	}
	l.Activation.apply(out.Data, l.Units)
	return out
}

// Flatten collapses a feature map into a vector in row-major order.
type Flatten struct {
	out []int
}

func (l *Flatten) Kind() string { return "Flatten" }

func (l *Flatten) params() int { return 0 }

func (l *Flatten) build(in []int) ([]int, error) {
	n := 1
	for _, d := range in {
		n *= d
	}
	l.out = []int{n}
	return l.out, nil
}

func (l *Flatten) forward(in cropper.Tensor) cropper.Tensor {
	return cropper.Tensor{Shape: l.out, Data: in.Data}
}

// Dropout is the identity at inference time.
type Dropout struct {
	Rate float64
}

func (l *Dropout) Kind() string { return "Dropout" }

func (l *Dropout) params() int { return 0 }

func (l *Dropout) build(in []int) ([]int, error) { return in, nil }

func (l *Dropout) forward(in cropper.Tensor) cropper.Tensor { return in }

// ActivationLayer applies a standalone activation.
type ActivationLayer struct {
	Fn Activation
}

func (l *ActivationLayer) Kind() string { return "Activation" }

func (l *ActivationLayer) params() int { return 0 }

func (l *ActivationLayer) build(in []int) ([]int, error) { return in, nil }

func (l *ActivationLayer) forward(in cropper.Tensor) cropper.Tensor {
	out := cropper.Tensor{Shape: in.Shape, Data: append([]float32(nil), in.Data...)}
	axis := 0
	if len(in.Shape) > 0 {
		axis = in.Shape[len(in.Shape)-1]
	}
	l.Fn.apply(out.Data, axis)
	return out
}

// windowDim computes the output length of a sliding window along one axis and
// the padding inserted before the first element.
func windowDim(in, k, stride int, padding string) (out, before int, err error) {
	if stride <= 0 {
		return 0, 0, fmt.Errorf("invalid stride %d", stride)
	}
	switch strings.ToLower(padding) {
	case "", "valid":
		if in < k {
			return 0, 0, fmt.Errorf("window %d larger than input %d", k, in)
		}
		return (in-k)/stride + 1, 0, nil
	case "same":
		out = (in + stride - 1) / stride
		total := (out-1)*stride + k - in
		if total < 0 {
			total = 0
		}
		return out, total / 2, nil
	default:
		return 0, 0, fmt.Errorf("unsupported padding %q", padding)
	}
}

func orDefault(v, def [2]int) [2]int {
	if v[0] <= 0 || v[1] <= 0 {
		return def
	}
	return v
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
