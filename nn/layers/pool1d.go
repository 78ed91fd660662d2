package layers

import (
	"fmt"

	"magpie/tensor"
)

// MaxPool1D takes the max over non-overlapping windows along the time axis.
// Input  [B, L, C]
// Output [B, (L-Window)/Window+1, C]
type MaxPool1D struct {
	name   string
	Window int

	argmax  []int
	inShape []int
}

func NewMaxPool1D(name string, window int) *MaxPool1D {
	return &MaxPool1D{name: name, Window: window}
}

func (p *MaxPool1D) outLen(L int) int {
	if L < p.Window {
		return 0
	}
	return (L-p.Window)/p.Window + 1
}

func (p *MaxPool1D) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	B, L, C, err := dims3(p.Tag(), x)
	if err != nil {
		return nil, err
	}
	outL := p.outLen(L)
	if p.Window < 1 || outL == 0 {
		return nil, shapeErr(p.Tag(), "window %d does not fit sequence length %d", p.Window, L)
	}
	out := tensor.New(B, outL, C)
	p.argmax = make([]int, out.Size())
	p.inShape = append(p.inShape[:0], x.Shape...)

	for b := 0; b < B; b++ {
		for i := 0; i < outL; i++ {
			for c := 0; c < C; c++ {
				base := b*L*C + i*p.Window*C + c
				best := base
				for j := 1; j < p.Window; j++ {
					idx := base + j*C
					if x.Data[idx] > x.Data[best] {
						best = idx
					}
				}
				o := b*outL*C + i*C + c
				out.Data[o] = x.Data[best]
				p.argmax[o] = best
			}
		}
	}
	return out, nil
}

func (p *MaxPool1D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if p.argmax == nil {
		return nil, ErrNoForward
	}
	if gradOut.Size() != len(p.argmax) {
		return nil, shapeErr(p.Tag(), "gradient %v does not match pooled output", gradOut.Shape)
	}
	gradIn := tensor.New(p.inShape...)
	for o, idx := range p.argmax {
		gradIn.Data[idx] += gradOut.Data[o]
	}
	return gradIn, nil
}

func (p *MaxPool1D) OutputShape(in []int) ([]int, error) {
	if len(in) != 2 || p.outLen(in[0]) == 0 {
		return nil, shapeErr(p.Tag(), "cannot pool %v", in)
	}
	return []int{p.outLen(in[0]), in[1]}, nil
}

func (p *MaxPool1D) Params() []*Param { return nil }
func (p *MaxPool1D) Name() string     { return p.name }
func (p *MaxPool1D) Tag() string {
	return fmt.Sprintf("MaxPool1D_%d", p.Window)
}
