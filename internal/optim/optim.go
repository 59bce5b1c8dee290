package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"contrastive-forge/internal/tensor"
)

// Optimizer updates parameters in place from their accumulated gradients.
type Optimizer interface {
	Step()
	ZeroGrad()
}

// New returns the optimizer registered under name ("adam" or "sgd").
func New(name string, params []*tensor.Param, lr float64) (Optimizer, error) {
	switch name {
	case "", "adam":
		return NewAdam(params, lr), nil
	case "sgd":
		return NewSGD(params, lr), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", name)
	}
}

// SGD is plain stochastic gradient descent: p -= lr * grad.
type SGD struct {
	params []*tensor.Param
	lr     float64
}

func NewSGD(params []*tensor.Param, lr float64) *SGD {
	return &SGD{params: params, lr: lr}
}

func (o *SGD) Step() {
	for _, p := range o.params {
		floats.AddScaled(p.Value.Data, -o.lr, p.Grad.Data)
	}
}

func (o *SGD) ZeroGrad() { zeroGrad(o.params) }

// Adam keeps bias-corrected first and second moment estimates per scalar.
//
//	m = b1*m + (1-b1)*g
//	v = b2*v + (1-b2)*g²
//	p -= lr * (m/(1-b1^t)) / (sqrt(v/(1-b2^t)) + eps)
type Adam struct {
	params       []*tensor.Param
	lr           float64
	beta1, beta2 float64
	eps          float64

	m, v [][]float64
	t    int
}

// NewAdam uses the usual defaults: betas 0.9/0.999, eps 1e-8.
func NewAdam(params []*tensor.Param, lr float64) *Adam {
	o := &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		o.m[i] = make([]float64, p.Value.Len())
		o.v[i] = make([]float64, p.Value.Len())
	}
	return o
}

func (o *Adam) Step() {
	o.t++
	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))
	for i, p := range o.params {
		m, v := o.m[i], o.v[i]
		w := p.Value.Data
		for j, g := range p.Grad.Data {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			w[j] -= o.lr * (m[j] / bias1) / (math.Sqrt(v[j]/bias2) + o.eps)
		}
	}
}

func (o *Adam) ZeroGrad() { zeroGrad(o.params) }

// Steps returns how many updates have been applied.
func (o *Adam) Steps() int { return o.t }

func zeroGrad(params []*tensor.Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
