package layers

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"magpie/tensor"
)

func TestConv1D_Shape(t *testing.T) {
	conv := NewConv1D("conv", 2, 5, 3, testSource())
	out, err := conv.Forward(filled(1, 8, 2), false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 5}, out.Shape)

	shape, err := conv.OutputShape([]int{8, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5}, shape)
	assert.Equal(t, "Conv1D_5x3", conv.Tag())
}

func TestConv1D_KnownValues(t *testing.T) {
	conv := NewConv1D("conv", 1, 1, 2, testSource())
	conv.W.Value.Data = []float64{1, 2} // out[t] = x[t] + 2x[t+1] + b
	conv.B.Value.Data = []float64{0.5}
	x, err := tensor.FromData([]float64{1, 2, 3, 4}, 1, 4, 1)
	require.NoError(t, err)

	out, err := conv.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{5.5, 8.5, 11.5}, out.Data)
}

func TestConv1D_RejectsBadInput(t *testing.T) {
	conv := NewConv1D("conv", 2, 3, 4, testSource())

	_, err := conv.Forward(filled(1, 3, 2), false)
	assert.True(t, errors.Is(err, tensor.ErrShape), "sequence shorter than kernel")

	_, err = conv.Forward(filled(1, 6, 3), false)
	assert.True(t, errors.Is(err, tensor.ErrShape), "wrong channel count")

	_, err = conv.Forward(filled(6, 3), false)
	assert.True(t, errors.Is(err, tensor.ErrShape), "rank 2")

	_, err = NewConv1D("c", 1, 1, 1, testSource()).Backward(filled(1, 1, 1))
	assert.ErrorIs(t, err, ErrNoForward)
}

func TestHeUniformBounds(t *testing.T) {
	w := tensor.New(3, 10, 8)
	HeUniform(w, 30, testSource())
	limit := math.Sqrt(6.0 / 30)
	for _, v := range w.Data {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}
}

func TestPReLU_ForwardMatchesReLUAtZeroAlpha(t *testing.T) {
	p := NewPReLU("prelu", 3)
	x, err := tensor.FromData([]float64{-1, 0, 2, 3, -4, 5}, 2, 3)
	require.NoError(t, err)
	out, err := p.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 3, 0, 5}, out.Data)

	p.Alpha.Value.Data = []float64{0.5, 0.5, 0.25}
	out, err = p.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.5, 0, 2, 3, -2, 5}, out.Data)

	_, err = p.Forward(filled(2, 4), false)
	assert.True(t, errors.Is(err, tensor.ErrShape))
}

func TestMaxPool1D_GlobalPool(t *testing.T) {
	p := NewMaxPool1D("pool", 4)
	x, err := tensor.FromData([]float64{
		1, -1,
		3, -5,
		2, 0,
		-7, -2,
	}, 1, 4, 2)
	require.NoError(t, err)
	out, err := p.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2}, out.Shape)
	assert.Equal(t, []float64{3, 0}, out.Data)

	grad, err := p.Backward(&tensor.Tensor{Data: []float64{10, 20}, Shape: []int{1, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 10, 0, 0, 20, 0, 0}, grad.Data)
}

func TestMaxPool1D_WindowKeepsItsOwnBase(t *testing.T) {
	// the second element of each window wins, which must not shift where
	// the rest of the window is read from
	p := NewMaxPool1D("pool", 3)
	x, err := tensor.FromData([]float64{1, 2, 0, 7, 0, 0}, 1, 6, 1)
	require.NoError(t, err)
	out, err := p.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, out.Shape)
	assert.Equal(t, []float64{2, 7}, out.Data)

	grad, err := p.Backward(&tensor.Tensor{Data: []float64{10, 20}, Shape: []int{1, 2, 1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 0, 20, 0, 0}, grad.Data)
}

func TestMaxPool1D_GlobalWindowStaysInSample(t *testing.T) {
	p := NewMaxPool1D("pool", 3)
	x, err := tensor.FromData([]float64{
		0, 5, 1,
		9, 9, 9,
	}, 2, 3, 1)
	require.NoError(t, err)
	out, err := p.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 9}, out.Data)
}

func TestMaxPool1D_DropsRemainder(t *testing.T) {
	p := NewMaxPool1D("pool", 2)
	shape, err := p.OutputShape([]int{5, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, shape)

	_, err = p.Forward(filled(1, 1, 3), false)
	assert.True(t, errors.Is(err, tensor.ErrShape))
}

func TestConcatenate(t *testing.T) {
	c := NewConcatenate("concat")
	a, err := tensor.FromData([]float64{1, 2, 3, 4}, 2, 1, 2)
	require.NoError(t, err)
	b, err := tensor.FromData([]float64{5, 6, 7, 8, 9, 10}, 2, 1, 3)
	require.NoError(t, err)

	out, err := c.Forward([]*tensor.Tensor{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 5}, out.Shape)
	assert.Equal(t, []float64{1, 2, 5, 6, 7, 3, 4, 8, 9, 10}, out.Data)

	grads, err := c.Backward(out)
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assert.Equal(t, a.Data, grads[0].Data)
	assert.Equal(t, b.Shape, grads[1].Shape)
	assert.Equal(t, b.Data, grads[1].Data)

	shape, err := c.OutputShape([][]int{{1, 2}, {1, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, shape)

	_, err = c.Forward([]*tensor.Tensor{a, filled(3, 1, 2)})
	assert.True(t, errors.Is(err, tensor.ErrShape))
}

func TestDropout(t *testing.T) {
	d := NewDropout("dropout", 0.25, testSource())
	x := tensor.New(4, 500)
	x.Fill(1)

	out, err := d.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, x.Data, out.Data, "identity at inference")

	out, err = d.Forward(x, true)
	require.NoError(t, err)
	kept := 0
	for _, v := range out.Data {
		if v != 0 {
			assert.InDelta(t, 1/0.75, v, 1e-12)
			kept++
		}
	}
	frac := float64(kept) / float64(x.Size())
	assert.InDelta(t, 0.75, frac, 0.05)

	grad, err := d.Backward(x)
	require.NoError(t, err)
	assert.Equal(t, out.Data, grad.Data, "gradient follows the mask")
}

func TestFlatten(t *testing.T) {
	f := NewFlatten("flatten")
	out, err := f.Forward(filled(2, 1, 3), false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape)

	back, err := f.Backward(out)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3}, back.Shape)
}

func TestDenseSoftmaxRowsSumToOne(t *testing.T) {
	d, err := NewDense("dense", 6, 4, Softmax, testSource())
	require.NoError(t, err)
	out, err := d.Forward(filled(3, 6), false)
	require.NoError(t, err)
	m := out.Matrix()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, mat.Sum(m.RowView(i)), 1e-12)
	}

	_, err = NewDense("dense", 6, 4, "relu6", testSource())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), `"relu6"`)
}

func TestHardSigmoid(t *testing.T) {
	assert.Equal(t, 0.0, HardSigmoid(-3))
	assert.Equal(t, 1.0, HardSigmoid(3))
	assert.Equal(t, 0.5, HardSigmoid(0))
	assert.InDelta(t, 0.7, HardSigmoid(1), 1e-12)
	assert.Equal(t, 0.2, HardSigmoidGrad(1))
	assert.Equal(t, 0.0, HardSigmoidGrad(2.6))
}

func TestOrthogonal(t *testing.T) {
	wide := tensor.New(4, 12)
	require.NoError(t, Orthogonal(wide, 4, 12, testSource()))
	var prod mat.Dense
	prod.Mul(wide.Matrix(), wide.Matrix().T())
	assert.True(t, mat.EqualApprox(&prod, eye(4), 1e-10), "rows are orthonormal")

	tall := tensor.New(6, 3)
	require.NoError(t, Orthogonal(tall, 6, 3, testSource()))
	prod.Reset()
	prod.Mul(tall.Matrix().T(), tall.Matrix())
	assert.True(t, mat.EqualApprox(&prod, eye(3), 1e-10), "columns are orthonormal")

	assert.Error(t, Orthogonal(tensor.New(5), 2, 3, testSource()))
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func TestGRU_ShapeAndZeroInput(t *testing.T) {
	g, err := NewGRU("gru", 3, 5, testSource())
	require.NoError(t, err)
	out, err := g.Forward(tensor.New(2, 4, 3), false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, out.Shape)
	// zero input and zero bias keep the state at zero
	for _, v := range out.Data {
		assert.Equal(t, 0.0, v)
	}
	assert.Len(t, g.Params(), 3)
	assert.Equal(t, []int{3, 15}, g.W.Value.Shape)
	assert.Equal(t, []int{5, 15}, g.U.Value.Shape)
}

func TestBatchNorm_TrainingAndInference(t *testing.T) {
	bn := NewBatchNorm("bn", 2)
	x, err := tensor.FromData([]float64{1, 10, 3, 30}, 2, 2)
	require.NoError(t, err)

	out, err := bn.Forward(x, true)
	require.NoError(t, err)
	// two samples normalize to roughly ±1
	assert.InDelta(t, -1, out.Data[0], 1e-3)
	assert.InDelta(t, 1, out.Data[2], 1e-3)

	// mean 2, unbiased variance 2 for feature 0
	assert.InDelta(t, 0.01*2, bn.MovingMean.Value.Data[0], 1e-12)
	assert.InDelta(t, 0.99+0.01*2, bn.MovingVariance.Value.Data[0], 1e-12)
	assert.False(t, bn.MovingMean.Trainable())

	inf, err := bn.Forward(x, false)
	require.NoError(t, err)
	want := (1 - bn.MovingMean.Value.Data[0]) / math.Sqrt(bn.MovingVariance.Value.Data[0]+bn.Epsilon)
	assert.InDelta(t, want, inf.Data[0], 1e-12)

	_, err = bn.Backward(x)
	assert.ErrorIs(t, err, ErrNoForward, "inference forward caches nothing")
}
