package optim

import (
	"math"
	"testing"

	"contrastive-forge/internal/tensor"
)

func quadParam(v ...float64) *tensor.Param {
	return tensor.NewParam("w", tensor.FromData(append([]float64(nil), v...), len(v)))
}

// setQuadGrad writes the gradient of 0.5*||w||².
func setQuadGrad(p *tensor.Param) {
	copy(p.Grad.Data, p.Value.Data)
}

func TestAdamFirstStepMovesByLR(t *testing.T) {
	p := quadParam(2, -3)
	opt := NewAdam([]*tensor.Param{p}, 0.1)
	setQuadGrad(p)
	opt.Step()
	// with bias correction the first Adam step is lr * sign(g)
	if math.Abs(p.Value.Data[0]-1.9) > 1e-6 || math.Abs(p.Value.Data[1]+2.9) > 1e-6 {
		t.Fatalf("unexpected first step %v", p.Value.Data)
	}
	if opt.Steps() != 1 {
		t.Fatalf("expected 1 step, got %d", opt.Steps())
	}
}

func TestOptimizersDescendQuadratic(t *testing.T) {
	for _, name := range []string{"adam", "sgd"} {
		p := quadParam(1, -2, 3)
		opt, err := New(name, []*tensor.Param{p}, 0.05)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		start := norm(p.Value.Data)
		for i := 0; i < 100; i++ {
			opt.ZeroGrad()
			setQuadGrad(p)
			opt.Step()
		}
		if end := norm(p.Value.Data); end >= start {
			t.Fatalf("%s: norm did not shrink %.4f -> %.4f", name, start, end)
		}
	}
}

func TestZeroGradClears(t *testing.T) {
	p := quadParam(1, 2)
	setQuadGrad(p)
	NewSGD([]*tensor.Param{p}, 1).ZeroGrad()
	for _, g := range p.Grad.Data {
		if g != 0 {
			t.Fatalf("gradient not cleared: %v", p.Grad.Data)
		}
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := New("lbfgs", nil, 0.1); err == nil {
		t.Fatal("expected error for unknown optimizer")
	}
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
