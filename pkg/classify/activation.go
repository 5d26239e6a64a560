package classify

import (
	"fmt"
	"math"
	"strings"
)

// Activation names an element-wise (or, for softmax, last-axis) nonlinearity.
type Activation string

const (
	Linear   Activation = "linear"
	ReLU     Activation = "relu"
	Sigmoid  Activation = "sigmoid"
	Tanh     Activation = "tanh"
	Softmax  Activation = "softmax"
	Softplus Activation = "softplus"
	ELU      Activation = "elu"
)

// ParseActivation accepts Keras activation names. An empty name means linear.
func ParseActivation(name string) (Activation, error) {
	a := Activation(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case "":
		return Linear, nil
	case Linear, ReLU, Sigmoid, Tanh, Softmax, Softplus, ELU:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported activation %q", name)
	}
}

// apply transforms data in place. axis is the size of the last dimension.
func (a Activation) apply(data []float32, axis int) {
	switch a {
	case "", Linear:
	case ReLU:
		for i, v := range data {
			if v < 0 {
				data[i] = 0
			}
		}
	case Sigmoid:
		for i, v := range data {
			data[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
	case Tanh:
		for i, v := range data {
			data[i] = float32(math.Tanh(float64(v)))
		}
	case Softplus:
		for i, v := range data {
			data[i] = float32(math.Log1p(math.Exp(float64(v))))
		}
	case ELU:
		for i, v := range data {
			if v < 0 {
				data[i] = float32(math.Expm1(float64(v)))
			}
		}
	case Softmax:
		if axis <= 0 {
			axis = len(data)
		}
		for start := 0; start+axis <= len(data); start += axis {
			softmax(data[start : start+axis])
		}
	}
}

func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	peak := v[0]
	for _, x := range v[1:] {
		if x > peak {
			peak = x
		}
	}
	var sum float64
	exps := make([]float64, len(v))
	for i, x := range v {
		exps[i] = math.Exp(float64(x - peak))
		sum += exps[i]
	}
	for i := range v {
		v[i] = float32(exps[i] / sum)
	}
}
