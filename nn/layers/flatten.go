package layers

import (
	"magpie/tensor"
)

// Flatten reshapes [B, d1, d2, ...] to [B, d1*d2*...].
type Flatten struct {
	name    string
	inShape []int
}

func NewFlatten(name string) *Flatten { return &Flatten{name: name} }

func (f *Flatten) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	if x.Rank() < 2 {
		return nil, shapeErr(f.Tag(), "expects a batched tensor, got %v", x.Shape)
	}
	f.inShape = append(f.inShape[:0], x.Shape...)
	y := tensor.New(x.Shape[0], x.Size()/x.Shape[0])
	copy(y.Data, x.Data)
	return y, nil
}

func (f *Flatten) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	if f.inShape == nil {
		return nil, ErrNoForward
	}
	return g.Clone().Reshape(f.inShape...)
}

func (f *Flatten) OutputShape(in []int) ([]int, error) { return []int{tensor.Volume(in)}, nil }
func (f *Flatten) Params() []*Param                    { return nil }
func (f *Flatten) Name() string                        { return f.name }
func (f *Flatten) Tag() string                         { return "Flatten" }
