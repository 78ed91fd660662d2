package tensor

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	assert.Len(t, t1.Data, 6)
	assert.Equal(t, []int{2, 3}, t1.Shape)
}

func TestAdd(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3}, Shape: []int{3}}
	b := &Tensor{Data: []float64{4, 5, 6}, Shape: []int{3}}
	c, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, c.Data)

	_, err = Add(a, New(2))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestMatMul(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3, 4}, Shape: []int{2, 2}}
	b := &Tensor{Data: []float64{5, 6, 7, 8}, Shape: []int{2, 2}}
	c, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{19, 22, 43, 50}, c.Data)

	_, err = MatMul(a, New(3, 2))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestReshapeSharesData(t *testing.T) {
	a, err := FromData([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	b, err := a.Reshape(3, 2)
	require.NoError(t, err)
	b.Data[0] = 42
	assert.Equal(t, 42.0, a.At(0, 0))
	assert.Equal(t, 4.0, b.At(1, 1))

	_, err = a.Reshape(4, 2)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestFromDataRejectsBadVolume(t *testing.T) {
	_, err := FromData([]float64{1, 2, 3}, 2, 2)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestArgMaxRows(t *testing.T) {
	a, err := FromData([]float64{0.1, 0.7, 0.2, 0.9, 0.05, 0.05}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, ArgMaxRows(a))
}

func TestAtSetPanicsOutOfRange(t *testing.T) {
	a := New(2, 2)
	a.Set(3, 1, 0)
	assert.Equal(t, 3.0, a.Data[2])
	assert.Panics(t, func() { a.At(2, 0) })
	assert.Panics(t, func() { a.Set(1, 0) })
}
