package layers

import (
	"magpie/tensor"
)

// Concatenate joins several tensors along their last axis. All inputs must
// agree on every other dimension.
type Concatenate struct {
	name  string
	split []int
}

func NewConcatenate(name string) *Concatenate { return &Concatenate{name: name} }

func (c *Concatenate) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(xs) == 0 {
		return nil, shapeErr(c.Tag(), "no inputs")
	}
	lead := xs[0].Shape[:len(xs[0].Shape)-1]
	rows := tensor.Volume(lead)
	c.split = c.split[:0]
	total := 0
	for _, x := range xs {
		if x.Rank() != len(lead)+1 {
			return nil, shapeErr(c.Tag(), "rank mismatch: %v vs %v", x.Shape, xs[0].Shape)
		}
		for i, d := range lead {
			if x.Shape[i] != d {
				return nil, shapeErr(c.Tag(), "cannot join %v with %v", x.Shape, xs[0].Shape)
			}
		}
		last := x.Shape[len(lead)]
		c.split = append(c.split, last)
		total += last
	}

	out := tensor.New(append(append([]int(nil), lead...), total)...)
	for r := 0; r < rows; r++ {
		off := r * total
		for i, x := range xs {
			w := c.split[i]
			copy(out.Data[off:off+w], x.Data[r*w:(r+1)*w])
			off += w
		}
	}
	return out, nil
}

// Backward splits gradOut back into one gradient per input.
func (c *Concatenate) Backward(gradOut *tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(c.split) == 0 {
		return nil, ErrNoForward
	}
	total := gradOut.Shape[gradOut.Rank()-1]
	lead := gradOut.Shape[:gradOut.Rank()-1]
	rows := tensor.Volume(lead)
	grads := make([]*tensor.Tensor, len(c.split))
	for i, w := range c.split {
		grads[i] = tensor.New(append(append([]int(nil), lead...), w)...)
	}
	for r := 0; r < rows; r++ {
		off := r * total
		for i, w := range c.split {
			copy(grads[i].Data[r*w:(r+1)*w], gradOut.Data[off:off+w])
			off += w
		}
	}
	return grads, nil
}

// OutputShape joins per-input shapes, which exclude the batch dimension.
func (c *Concatenate) OutputShape(in [][]int) ([]int, error) {
	if len(in) == 0 {
		return nil, shapeErr(c.Tag(), "no inputs")
	}
	out := append([]int(nil), in[0]...)
	for _, s := range in[1:] {
		if len(s) != len(out) {
			return nil, shapeErr(c.Tag(), "rank mismatch: %v vs %v", s, in[0])
		}
		out[len(out)-1] += s[len(s)-1]
	}
	return out, nil
}

func (c *Concatenate) Name() string { return c.name }
func (c *Concatenate) Tag() string  { return "Concatenate" }
