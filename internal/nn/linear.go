package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"contrastive-forge/internal/tensor"
)

// Linear computes y = x Wᵀ + b over rows of x.
type Linear struct {
	In, Out int

	Weight *tensor.Param // [Out, In]
	Bias   *tensor.Param // [Out]
}

// NewLinear builds a fully connected layer with PyTorch-style uniform init.
func NewLinear(rng *rand.Rand, name string, in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: uniformParam(rng, name+".weight", in, out, in),
		Bias:   uniformParam(rng, name+".bias", in, out),
	}
}

func (l *Linear) Parameters() []*tensor.Param {
	return []*tensor.Param{l.Weight, l.Bias}
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	if len(x.Shape) != 2 || x.Shape[1] != l.In {
		panic(fmt.Sprintf("linear: want [B,%d], got %v", l.In, x.Shape))
	}
	batch := x.Shape[0]
	w := l.Weight.Value.Reshape(l.Out, l.In)
	y := tensor.MatMulT(x, w)
	for b := 0; b < batch; b++ {
		floats.Add(y.Row(b), l.Bias.Value.Data)
	}

	return y, func(grad *tensor.Tensor) *tensor.Tensor {
		if !tensor.SameShape(grad, y) {
			panic(fmt.Sprintf("linear: grad shape %v, output %v", grad.Shape, y.Shape))
		}
		tensor.Gemm(true, false, 1,
			tensor.General(grad.Data, batch, l.Out),
			tensor.General(x.Data, batch, l.In),
			1, tensor.General(l.Weight.Grad.Data, l.Out, l.In))
		for b := 0; b < batch; b++ {
			floats.Add(l.Bias.Grad.Data, grad.Row(b))
		}
		return tensor.MatMul(grad, w)
	}
}
