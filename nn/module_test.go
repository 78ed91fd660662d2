package nn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magpie/nn/layers"
	"magpie/tensor"
)

// dummy layer: adds a constant
type addLayer struct{ c float64 }

func (l *addLayer) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] += l.c
	}
	return out, nil
}
func (l *addLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) { return grad, nil }
func (l *addLayer) Params() []*layers.Param                              { return nil }
func (l *addLayer) OutputShape(in []int) ([]int, error)                  { return in, nil }
func (l *addLayer) Name() string                                         { return "add" }
func (l *addLayer) Tag() string                                          { return "Add" }

// dummy layer: error on forward
type errLayer struct{ addLayer }

func (l *errLayer) Forward(*tensor.Tensor, bool) (*tensor.Tensor, error) {
	return nil, errors.New("fail")
}

func TestSequentialForward(t *testing.T) {
	a := tensor.New(1)
	a.Data[0] = 1
	seq := &Sequential{Layers: []layers.Layer{&addLayer{c: 2}, &addLayer{c: 3}}}
	out, err := seq.Forward(a, false)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out.Data[0])

	g, err := seq.Backward(out)
	require.NoError(t, err)
	assert.Same(t, out, g)
}

func TestSequentialForwardError(t *testing.T) {
	seq := &Sequential{Layers: []layers.Layer{&addLayer{c: 0}, &errLayer{}}}
	_, err := seq.Forward(tensor.New(1), false)
	assert.EqualError(t, err, "fail")
}

func TestSequentialParamsAndShape(t *testing.T) {
	dense, err := layers.NewDense("dense", 4, 2, layers.Linear, testSource())
	require.NoError(t, err)
	seq := &Sequential{Layers: []layers.Layer{layers.NewFlatten("flatten"), dense}}
	assert.Len(t, seq.Params(), 2)

	shape, err := seq.OutputShape([]int{1, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, shape)

	_, err = seq.OutputShape([]int{1, 5})
	assert.Error(t, err)
}
