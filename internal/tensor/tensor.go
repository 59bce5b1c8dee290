package tensor

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major float64 array.
//
// Shape errors are programmer bugs and panic.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	n := numel(shape)
	return &Tensor{Data: make([]float64, n), Shape: append([]int(nil), shape...)}
}

// FromData wraps data with shape. len(data) must match the shape.
func FromData(data []float64, shape ...int) *Tensor {
	if n := numel(shape); n != len(data) {
		panic(fmt.Sprintf("tensor: shape %v needs %d values, got %d", shape, n, len(data)))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}
}

// Uniform fills a new tensor with values drawn from U(-bound, bound).
func Uniform(rng *rand.Rand, bound float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = (rng.Float64()*2 - 1) * bound
	}
	return t
}

func numel(shape []int) int {
	if len(shape) == 0 {
		panic("tensor: empty shape")
	}
	n := 1
	for i, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("tensor: shape[%d] must be positive, got %d", i, d))
		}
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Data: append([]float64(nil), t.Data...), Shape: append([]int(nil), t.Shape...)}
}

// Reshape returns a view sharing Data with a new shape.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numel(shape) != len(t.Data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}
}

// Row returns the i-th slice along axis 0.
func (t *Tensor) Row(i int) []float64 {
	stride := len(t.Data) / t.Shape[0]
	return t.Data[i*stride : (i+1)*stride]
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Stack concatenates equally shaped tensors along a new leading axis.
func Stack(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("tensor: stack of nothing")
	}
	inner := ts[0].Shape
	out := New(append([]int{len(ts)}, inner...)...)
	stride := ts[0].Len()
	for i, t := range ts {
		if !SameShape(t, ts[0]) {
			panic(fmt.Sprintf("tensor: stack shape %v vs %v", t.Shape, inner))
		}
		copy(out.Data[i*stride:], t.Data)
	}
	return out
}

// Concat joins 2-D tensors along axis 0.
func Concat(a, b *Tensor) *Tensor {
	if len(a.Shape) != 2 || len(b.Shape) != 2 || a.Shape[1] != b.Shape[1] {
		panic(fmt.Sprintf("tensor: concat %v and %v", a.Shape, b.Shape))
	}
	out := New(a.Shape[0]+b.Shape[0], a.Shape[1])
	copy(out.Data, a.Data)
	copy(out.Data[len(a.Data):], b.Data)
	return out
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// HasNaN reports whether any element is NaN.
func (t *Tensor) HasNaN() bool { return floats.HasNaN(t.Data) }

// Param is a trainable tensor with its accumulated gradient.
type Param struct {
	Name  string
	Value *Tensor
	Grad  *Tensor
}

// NewParam wraps value and allocates a matching zero gradient.
func NewParam(name string, value *Tensor) *Param {
	return &Param{Name: name, Value: value, Grad: New(value.Shape...)}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() { p.Grad.Zero() }

// Count returns the total number of scalars across params.
func Count(params []*Param) int {
	n := 0
	for _, p := range params {
		n += p.Value.Len()
	}
	return n
}
