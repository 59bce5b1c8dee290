package nn

import (
	"fmt"
	"math/rand"

	"contrastive-forge/internal/tensor"
)

// Conv2d is a 2-D convolution over NCHW input, lowered to GEMM via im2col.
type Conv2d struct {
	InC, OutC, Kernel, Stride, Pad int

	Weight *tensor.Param // [OutC, InC, Kernel, Kernel]
	Bias   *tensor.Param // [OutC]
}

// NewConv2d builds a convolution with PyTorch-style uniform init.
func NewConv2d(rng *rand.Rand, name string, inC, outC, kernel, stride, pad int) *Conv2d {
	fanIn := inC * kernel * kernel
	return &Conv2d{
		InC:    inC,
		OutC:   outC,
		Kernel: kernel,
		Stride: stride,
		Pad:    pad,
		Weight: uniformParam(rng, name+".weight", fanIn, outC, inC, kernel, kernel),
		Bias:   uniformParam(rng, name+".bias", fanIn, outC),
	}
}

// OutSize returns the spatial output size for an input of size n.
func (c *Conv2d) OutSize(n int) int {
	return (n+2*c.Pad-c.Kernel)/c.Stride + 1
}

func (c *Conv2d) Parameters() []*tensor.Param {
	return []*tensor.Param{c.Weight, c.Bias}
}

type convGeom struct {
	c, h, w, oh, ow, k, stride, pad int
}

func (g convGeom) rows() int { return g.c * g.k * g.k }
func (g convGeom) cols() int { return g.oh * g.ow }

// Forward computes the convolution of x [B, InC, H, W].
func (c *Conv2d) Forward(x *tensor.Tensor) (*tensor.Tensor, Backward) {
	if len(x.Shape) != 4 || x.Shape[1] != c.InC {
		panic(fmt.Sprintf("conv2d: want [B,%d,H,W], got %v", c.InC, x.Shape))
	}
	batch, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	g := convGeom{c: c.InC, h: h, w: w, oh: c.OutSize(h), ow: c.OutSize(w), k: c.Kernel, stride: c.Stride, pad: c.Pad}
	rows, cols := g.rows(), g.cols()
	inStride := c.InC * h * w
	outStride := c.OutC * cols

	colBuf := make([]float64, batch*rows*cols)
	out := tensor.New(batch, c.OutC, g.oh, g.ow)
	weight := tensor.General(c.Weight.Value.Data, c.OutC, rows)
	bias := c.Bias.Value.Data

	tensor.Parallel(batch, func(_, lo, hi int) {
		for b := lo; b < hi; b++ {
			col := colBuf[b*rows*cols : (b+1)*rows*cols]
			im2col(g, x.Data[b*inStride:(b+1)*inStride], col)
			dst := out.Data[b*outStride : (b+1)*outStride]
			for oc := 0; oc < c.OutC; oc++ {
				row := dst[oc*cols : (oc+1)*cols]
				for i := range row {
					row[i] = bias[oc]
				}
			}
			tensor.Gemm(false, false, 1, weight, tensor.General(col, rows, cols), 1, tensor.General(dst, c.OutC, cols))
		}
	})

	return out, func(grad *tensor.Tensor) *tensor.Tensor {
		if !tensor.SameShape(grad, out) {
			panic(fmt.Sprintf("conv2d: grad shape %v, output %v", grad.Shape, out.Shape))
		}
		gx := tensor.New(x.Shape...)
		workers := tensor.Workers(batch)
		dW := make([][]float64, workers)
		dB := make([][]float64, workers)

		tensor.Parallel(batch, func(wk, lo, hi int) {
			dw := make([]float64, c.OutC*rows)
			db := make([]float64, c.OutC)
			dcol := make([]float64, rows*cols)
			for b := lo; b < hi; b++ {
				gOut := grad.Data[b*outStride : (b+1)*outStride]
				col := colBuf[b*rows*cols : (b+1)*rows*cols]
				tensor.Gemm(false, true, 1, tensor.General(gOut, c.OutC, cols), tensor.General(col, rows, cols), 1, tensor.General(dw, c.OutC, rows))
				for oc := 0; oc < c.OutC; oc++ {
					for _, v := range gOut[oc*cols : (oc+1)*cols] {
						db[oc] += v
					}
				}
				tensor.Gemm(true, false, 1, weight, tensor.General(gOut, c.OutC, cols), 0, tensor.General(dcol, rows, cols))
				col2im(g, dcol, gx.Data[b*inStride:(b+1)*inStride])
			}
			dW[wk], dB[wk] = dw, db
		})

		for i := range dW {
			if dW[i] == nil {
				continue
			}
			addTo(c.Weight.Grad.Data, dW[i])
			addTo(c.Bias.Grad.Data, dB[i])
		}
		return gx
	}
}

// im2col unrolls one CHW image into a [C*K*K, OH*OW] patch matrix.
func im2col(g convGeom, img, col []float64) {
	cols := g.cols()
	for c := 0; c < g.c; c++ {
		for ky := 0; ky < g.k; ky++ {
			for kx := 0; kx < g.k; kx++ {
				r := (c*g.k+ky)*g.k + kx
				dst := col[r*cols : (r+1)*cols]
				for oy := 0; oy < g.oh; oy++ {
					iy := oy*g.stride - g.pad + ky
					for ox := 0; ox < g.ow; ox++ {
						ix := ox*g.stride - g.pad + kx
						if iy < 0 || iy >= g.h || ix < 0 || ix >= g.w {
							dst[oy*g.ow+ox] = 0
							continue
						}
						dst[oy*g.ow+ox] = img[(c*g.h+iy)*g.w+ix]
					}
				}
			}
		}
	}
}

// col2im scatters patch gradients back into image layout, accumulating.
func col2im(g convGeom, col, img []float64) {
	cols := g.cols()
	for c := 0; c < g.c; c++ {
		for ky := 0; ky < g.k; ky++ {
			for kx := 0; kx < g.k; kx++ {
				r := (c*g.k+ky)*g.k + kx
				src := col[r*cols : (r+1)*cols]
				for oy := 0; oy < g.oh; oy++ {
					iy := oy*g.stride - g.pad + ky
					if iy < 0 || iy >= g.h {
						continue
					}
					for ox := 0; ox < g.ow; ox++ {
						ix := ox*g.stride - g.pad + kx
						if ix < 0 || ix >= g.w {
							continue
						}
						img[(c*g.h+iy)*g.w+ix] += src[oy*g.ow+ox]
					}
				}
			}
		}
	}
}
