package tensor

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when tensor dimensions do not line up.
var ErrShape = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat, row-major []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zeroed Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Volume(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData wraps a copy of data with the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if Volume(shape) != len(data) {
		return nil, errors.Wrapf(ErrShape, "%d values do not fill shape %v", len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Volume is the number of elements a tensor of the given shape holds.
func Volume(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// Size returns len(t.Data).
func (t *Tensor) Size() int { return len(t.Data) }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a tensor sharing t's data under a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if Volume(shape) != len(t.Data) {
		return nil, errors.Wrapf(ErrShape, "cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
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

// Matrix views t as a rows×cols gonum matrix where cols is the last
// dimension. The returned matrix shares t's backing data.
func (t *Tensor) Matrix() *mat.Dense {
	cols := 1
	if len(t.Shape) > 0 {
		cols = t.Shape[len(t.Shape)-1]
	}
	rows := 1
	if cols > 0 {
		rows = len(t.Data) / cols
	}
	return mat.NewDense(rows, cols, t.Data)
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, errors.Wrapf(ErrShape, "%v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// AddInPlace accumulates b into a.
func AddInPlace(a, b *Tensor) error {
	if len(a.Data) != len(b.Data) {
		return errors.Wrapf(ErrShape, "%v vs %v", a.Shape, b.Shape)
	}
	for i := range b.Data {
		a.Data[i] += b.Data[i]
	}
	return nil
}

// MatMul returns a×b (2-D only), or error if dims mismatch.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, errors.Wrapf(ErrShape, "MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	r, k := a.Shape[0], a.Shape[1]
	k2, c := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, errors.Wrapf(ErrShape, "inner dimensions must match: %d vs %d", k, k2)
	}
	out := New(r, c)
	out.Matrix().Mul(a.Matrix(), b.Matrix())
	return out, nil
}

// ArgMaxRows returns the argmax of every row of a tensor viewed as a matrix.
func ArgMaxRows(t *Tensor) []int {
	m := t.Matrix()
	rows, cols := m.Dims()
	idx := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if m.At(i, j) > m.At(i, best) {
				best = j
			}
		}
		idx[i] = best
	}
	return idx
}

// offset computes the flat index of indices within shape.
func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// At returns the element at the given indices.
// For a 3D tensor [a, b, c], At(i, j, k) returns the element at position [i][j][k].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}
