// Package nn holds the layers of the contrastive network. Every Forward call
// returns a Backward closure bound to the activations it saw, so one set of
// parameters can be run over several inputs (the two augmented views) and
// back-propagated for each of them into the same gradient buffers.
package nn

import (
	"math"
	"math/rand"

	"contrastive-forge/internal/tensor"
)

// Backward maps the gradient of the loss w.r.t. a layer output to the
// gradient w.r.t. its input, accumulating parameter gradients on the way.
type Backward func(grad *tensor.Tensor) *tensor.Tensor

// Layer is one differentiable stage of the network.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, Backward)
	Parameters() []*tensor.Param
}

// Sequential runs layers in order.
type Sequential []Layer

// Forward chains every layer and returns a closure that unwinds them.
func (s Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	backs := make([]Backward, len(s))
	for i, l := range s {
		x, backs[i] = l.Forward(x)
	}
	return x, func(grad *tensor.Tensor) *tensor.Tensor {
		for i := len(backs) - 1; i >= 0; i-- {
			grad = backs[i](grad)
		}
		return grad
	}
}

// Parameters collects parameters of all layers in order.
func (s Sequential) Parameters() []*tensor.Param {
	var ps []*tensor.Param
	for _, l := range s {
		ps = append(ps, l.Parameters()...)
	}
	return ps
}

// fanInBound is the PyTorch default init bound for conv and linear layers.
func fanInBound(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}

func uniformParam(rng *rand.Rand, name string, fanIn int, shape ...int) *tensor.Param {
	return tensor.NewParam(name, tensor.Uniform(rng, fanInBound(fanIn), shape...))
}
