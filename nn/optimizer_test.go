package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"magpie/nn/layers"
	"magpie/tensor"
)

func param(name string, value, grad float64) *layers.Param {
	return &layers.Param{
		Name:  name,
		Value: tensor.NewWithData([]float64{value}),
		Grad:  tensor.NewWithData([]float64{grad}),
	}
}

func TestSGDPlain(t *testing.T) {
	p := param("w", 1, 0.5)
	NewSGD(0.1, 0, 0, false).Step([]*layers.Param{p})
	assert.InDelta(t, 0.95, p.Value.Data[0], 1e-12)
}

func TestSGDMomentumAndNesterov(t *testing.T) {
	p := param("w", 1, 1)
	o := NewSGD(0.1, 0, 0.9, false)
	o.Step([]*layers.Param{p}) // v=-0.1
	o.Step([]*layers.Param{p}) // v=-0.19
	assert.InDelta(t, 1-0.1-0.19, p.Value.Data[0], 1e-12)

	q := param("w", 1, 1)
	n := NewSGD(0.1, 0, 0.9, true)
	n.Step([]*layers.Param{q}) // v=-0.1, w += 0.9*-0.1 - 0.1
	assert.InDelta(t, 1-0.09-0.1, q.Value.Data[0], 1e-12)
}

func TestSGDDecay(t *testing.T) {
	o := NewSGD(0.01, 0.5, 0, false)
	assert.InDelta(t, 0.01, o.CurrentLR(), 1e-15)
	o.Step(nil)
	o.Step(nil)
	assert.InDelta(t, 0.01/2, o.CurrentLR(), 1e-15)
}

func TestAdamFirstStep(t *testing.T) {
	p := param("w", 1, 0.3)
	NewAdam().Step([]*layers.Param{p})
	// the first bias-corrected step moves by ~lr in the gradient's direction
	assert.InDelta(t, 1-0.001, p.Value.Data[0], 1e-6)
}

func TestOptimizersSkipFrozenParams(t *testing.T) {
	frozen := &layers.Param{Name: "moving_mean", Value: tensor.NewWithData([]float64{3})}
	NewSGD(0.1, 0, 0.9, true).Step([]*layers.Param{frozen})
	NewAdam().Step([]*layers.Param{frozen})
	assert.Equal(t, 3.0, frozen.Value.Data[0])
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := param("w", 3, 0)
	o := NewAdam()
	o.LR = 0.1
	for i := 0; i < 500; i++ {
		p.Grad.Data[0] = 2 * p.Value.Data[0]
		o.Step([]*layers.Param{p})
	}
	assert.Less(t, math.Abs(p.Value.Data[0]), 0.1)
}
