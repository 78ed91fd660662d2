package layers

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"golang.org/x/exp/rand"

	"magpie/tensor"
)

// Dense is a fully-connected layer y = act(x·W + b).
// Input  [B, In]
// Output [B, Out]
type Dense struct {
	name       string
	Activation string
	W, B       *Param

	lastInput *tensor.Tensor
	lastOut   *tensor.Tensor
}

// NewDense builds a Dense layer with glorot_uniform kernel and zero bias.
// activation is Linear or Softmax.
func NewDense(name string, in, out int, activation string, src rand.Source) (*Dense, error) {
	if activation != Linear && activation != Softmax {
		return nil, errors.Mark(errors.Newf("dense: unsupported activation %q", activation), ErrInvalidArgument)
	}
	d := &Dense{
		name:       name,
		Activation: activation,
		W:          newParam(name+"/kernel", in, out),
		B:          newParam(name+"/bias", out),
	}
	GlorotUniform(d.W.Value, in, out, src)
	return d, nil
}

func (d *Dense) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	B, in, err := dims2(d.Tag(), x)
	if err != nil {
		return nil, err
	}
	if in != d.W.Value.Shape[0] {
		return nil, shapeErr(d.Tag(), "expects %d features, got %d", d.W.Value.Shape[0], in)
	}
	outDim := d.W.Value.Shape[1]
	out := tensor.New(B, outDim)
	om := out.Matrix()
	om.Mul(x.Matrix(), d.W.Value.Matrix())
	for i := 0; i < B; i++ {
		floats := om.RawRowView(i)
		for j := range floats {
			floats[j] += d.B.Value.Data[j]
		}
	}
	if d.Activation == Softmax {
		SoftmaxRows(om)
	}
	d.lastInput, d.lastOut = x, out
	return out, nil
}

func (d *Dense) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if d.lastInput == nil {
		return nil, ErrNoForward
	}
	if !tensor.SameShape(gradOut, d.lastOut) {
		return nil, shapeErr(d.Tag(), "gradient %v does not match output %v", gradOut.Shape, d.lastOut.Shape)
	}
	g := gradOut.Matrix()
	if d.Activation == Softmax {
		g = softmaxBackward(d.lastOut.Matrix(), g)
	}
	d.W.Grad.Matrix().Mul(d.lastInput.Matrix().T(), g)
	db := d.B.Grad.Data
	rows, _ := g.Dims()
	for j := range db {
		db[j] = 0
	}
	for i := 0; i < rows; i++ {
		for j, v := range g.RawRowView(i) {
			db[j] += v
		}
	}
	gradIn := tensor.New(d.lastInput.Shape...)
	gradIn.Matrix().Mul(g, d.W.Value.Matrix().T())
	return gradIn, nil
}

func (d *Dense) OutputShape(in []int) ([]int, error) {
	if len(in) != 1 || in[0] != d.W.Value.Shape[0] {
		return nil, shapeErr(d.Tag(), "expects [%d], got %v", d.W.Value.Shape[0], in)
	}
	return []int{d.W.Value.Shape[1]}, nil
}

func (d *Dense) Params() []*Param { return []*Param{d.W, d.B} }
func (d *Dense) Name() string     { return d.name }
func (d *Dense) Tag() string {
	if d.Activation == Linear {
		return fmt.Sprintf("Dense_%d", d.W.Value.Shape[1])
	}
	return fmt.Sprintf("Dense_%d_%s", d.W.Value.Shape[1], d.Activation)
}
