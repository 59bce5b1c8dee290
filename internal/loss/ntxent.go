// Package loss implements the normalized temperature-scaled cross-entropy
// (NT-Xent) objective over two batches of paired embeddings.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"contrastive-forge/internal/tensor"
)

// MaskValue replaces self-similarity logits so they never win the softmax.
const MaskValue = -1e9

// Result carries the scalar loss and its gradient w.r.t. each input batch.
type Result struct {
	Loss  float64
	Grad1 *tensor.Tensor
	Grad2 *tensor.Tensor
}

// NTXent computes the contrastive loss for z1, z2 [B, D] at temperature tau.
//
// Rows of the 2B x 2B similarity matrix are treated as logits of a 2B-way
// classification whose target is the other view of the same source image;
// the loss is the mean cross-entropy over all rows.
func NTXent(z1, z2 *tensor.Tensor, tau float64) Result {
	if tau <= 0 {
		panic(fmt.Sprintf("ntxent: temperature must be > 0, got %g", tau))
	}
	if len(z1.Shape) != 2 || !tensor.SameShape(z1, z2) {
		panic(fmt.Sprintf("ntxent: mismatched inputs %v and %v", z1.Shape, z2.Shape))
	}
	b := z1.Dim(0)
	n := 2 * b
	z := tensor.Concat(z1, z2)

	sim := tensor.MatMulT(z, z)
	floats.Scale(1/tau, sim.Data)
	for i := 0; i < n; i++ {
		sim.Data[i*n+i] = MaskValue
	}

	// grad holds dL/dS = (softmax(S) - onehot) / n, with the masked diagonal
	// contributing nothing.
	grad := tensor.New(n, n)
	total := 0.0
	for i := 0; i < n; i++ {
		row := sim.Row(i)
		pos := positive(i, b)
		lse := floats.LogSumExp(row)
		total += lse - row[pos]

		g := grad.Row(i)
		for j, v := range row {
			if j == i {
				continue
			}
			g[j] = math.Exp(v-lse) / float64(n)
		}
		g[pos] -= 1 / float64(n)
	}

	// S = z zᵀ / tau  =>  dL/dz = (G + Gᵀ) z / tau
	sym := tensor.New(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sym.Data[i*n+j] = grad.Data[i*n+j] + grad.Data[j*n+i]
		}
	}
	dz := tensor.MatMul(sym, z)
	floats.Scale(1/tau, dz.Data)

	half := b * z1.Shape[1]
	return Result{
		Loss:  total / float64(n),
		Grad1: tensor.FromData(dz.Data[:half], z1.Shape...),
		Grad2: tensor.FromData(dz.Data[half:], z2.Shape...),
	}
}

// positive returns the row index of the other view of sample i.
func positive(i, b int) int {
	if i < b {
		return i + b
	}
	return i - b
}
