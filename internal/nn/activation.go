package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"contrastive-forge/internal/tensor"
)

// ReLU is max(0, x).
type ReLU struct{}

func (ReLU) Parameters() []*tensor.Param { return nil }

func (ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	y := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			y.Data[i] = v
		}
	}
	return y, func(grad *tensor.Tensor) *tensor.Tensor {
		gx := tensor.New(x.Shape...)
		for i, v := range y.Data {
			if v > 0 {
				gx.Data[i] = grad.Data[i]
			}
		}
		return gx
	}
}

// Flatten collapses every axis after the first.
type Flatten struct{}

func (Flatten) Parameters() []*tensor.Param { return nil }

func (Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	shape := x.Shape
	y := x.Reshape(shape[0], x.Len()/shape[0])
	return y, func(grad *tensor.Tensor) *tensor.Tensor {
		return grad.Reshape(shape...)
	}
}

// L2Normalize scales each row to unit Euclidean norm, x / max(‖x‖, Eps).
type L2Normalize struct {
	Eps float64
}

func (L2Normalize) Parameters() []*tensor.Param { return nil }

func (n L2Normalize) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	if len(x.Shape) != 2 {
		panic(fmt.Sprintf("l2normalize: want [B,D], got %v", x.Shape))
	}
	rows := x.Shape[0]
	y := x.Clone()
	norms := make([]float64, rows)
	for i := 0; i < rows; i++ {
		norms[i] = math.Max(floats.Norm(x.Row(i), 2), n.Eps)
		floats.Scale(1/norms[i], y.Row(i))
	}
	return y, func(grad *tensor.Tensor) *tensor.Tensor {
		gx := grad.Clone()
		for i := 0; i < rows; i++ {
			g := gx.Row(i)
			if norms[i] > n.Eps {
				// (I - y yᵀ) g / ‖x‖
				floats.AddScaled(g, -floats.Dot(y.Row(i), grad.Row(i)), y.Row(i))
			}
			floats.Scale(1/norms[i], g)
		}
		return gx
	}
}

func addTo(dst, src []float64) { floats.Add(dst, src) }
