package layers

import (
	"magpie/tensor"
)

// PReLU is a leaky ReLU with a learned slope per non-batch element.
// alpha starts at zero, so a fresh PReLU behaves like ReLU.
type PReLU struct {
	name  string
	Alpha *Param

	lastInput *tensor.Tensor
}

// NewPReLU builds a PReLU for inputs whose non-batch shape is shape.
func NewPReLU(name string, shape ...int) *PReLU {
	return &PReLU{name: name, Alpha: newParam(name+"/alpha", shape...)}
}

func (p *PReLU) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	n := p.Alpha.Value.Size()
	if x.Rank() < 2 || x.Size() != x.Shape[0]*n {
		return nil, shapeErr(p.Tag(), "input %v does not match alpha %v", x.Shape, p.Alpha.Value.Shape)
	}
	p.lastInput = x
	alpha := p.Alpha.Value.Data
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = alpha[i%n] * v
		}
	}
	return out, nil
}

func (p *PReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	x := p.lastInput
	if x == nil {
		return nil, ErrNoForward
	}
	if gradOut.Size() != x.Size() {
		return nil, shapeErr(p.Tag(), "gradient %v does not match input %v", gradOut.Shape, x.Shape)
	}
	n := p.Alpha.Value.Size()
	alpha := p.Alpha.Value.Data
	dAlpha := p.Alpha.Grad
	dAlpha.Zero()
	gradIn := tensor.New(x.Shape...)
	for i, v := range x.Data {
		g := gradOut.Data[i]
		if v > 0 {
			gradIn.Data[i] = g
		} else {
			gradIn.Data[i] = alpha[i%n] * g
			dAlpha.Data[i%n] += v * g
		}
	}
	return gradIn, nil
}

func (p *PReLU) OutputShape(in []int) ([]int, error) {
	if tensor.Volume(in) != p.Alpha.Value.Size() {
		return nil, shapeErr(p.Tag(), "input %v does not match alpha %v", in, p.Alpha.Value.Shape)
	}
	return append([]int(nil), in...), nil
}

func (p *PReLU) Params() []*Param { return []*Param{p.Alpha} }
func (p *PReLU) Name() string     { return p.name }
func (p *PReLU) Tag() string      { return "PReLU" }
