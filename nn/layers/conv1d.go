package layers

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"magpie/tensor"
)

// Conv1D is a valid-padding, stride-1 temporal convolution.
// Input  [B, L, C]
// Output [B, L-k+1, F]
// The kernel is laid out [k, C, F] so each k×C input window is a
// contiguous row and the kernel reshapes to a (k*C)×F matrix.
type Conv1D struct {
	name    string
	Filters int
	Kernel  int
	W, B    *Param

	patches *mat.Dense // im2col of the last input, [B*Lout, k*C]
	inShape []int
}

// NewConv1D builds a Conv1D over inC channels with he_uniform kernel init.
func NewConv1D(name string, inC, filters, kernel int, src rand.Source) *Conv1D {
	c := &Conv1D{
		name:    name,
		Filters: filters,
		Kernel:  kernel,
		W:       newParam(name+"/kernel", kernel, inC, filters),
		B:       newParam(name+"/bias", filters),
	}
	HeUniform(c.W.Value, kernel*inC, src)
	return c
}

func (c *Conv1D) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	B, L, C, err := dims3(c.Tag(), x)
	if err != nil {
		return nil, err
	}
	if C != c.W.Value.Shape[1] {
		return nil, shapeErr(c.Tag(), "expects %d channels, got %d", c.W.Value.Shape[1], C)
	}
	lout := L - c.Kernel + 1
	if lout < 1 {
		return nil, shapeErr(c.Tag(), "sequence length %d shorter than kernel %d", L, c.Kernel)
	}
	win := c.Kernel * C
	c.patches = mat.NewDense(B*lout, win, nil)
	for b := 0; b < B; b++ {
		base := b * L * C
		for t := 0; t < lout; t++ {
			copy(c.patches.RawRowView(b*lout+t), x.Data[base+t*C:base+t*C+win])
		}
	}
	c.inShape = append(c.inShape[:0], x.Shape...)

	out := tensor.New(B, lout, c.Filters)
	om := out.Matrix()
	om.Mul(c.patches, mat.NewDense(win, c.Filters, c.W.Value.Data))
	bias := c.B.Value.Data
	for i := 0; i < B*lout; i++ {
		row := om.RawRowView(i)
		for f := range row {
			row[f] += bias[f]
		}
	}
	return out, nil
}

func (c *Conv1D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.patches == nil {
		return nil, ErrNoForward
	}
	B, L, C := c.inShape[0], c.inShape[1], c.inShape[2]
	lout := L - c.Kernel + 1
	if gradOut.Size() != B*lout*c.Filters {
		return nil, shapeErr(c.Tag(), "gradient %v does not match output [%d %d %d]", gradOut.Shape, B, lout, c.Filters)
	}
	win := c.Kernel * C
	g := mat.NewDense(B*lout, c.Filters, gradOut.Data)

	mat.NewDense(win, c.Filters, c.W.Grad.Data).Mul(c.patches.T(), g)
	db := c.B.Grad.Data
	for f := range db {
		db[f] = 0
	}
	for i := 0; i < B*lout; i++ {
		for f, v := range g.RawRowView(i) {
			db[f] += v
		}
	}

	var dPatches mat.Dense
	dPatches.Mul(g, mat.NewDense(win, c.Filters, c.W.Value.Data).T())
	gradIn := tensor.New(c.inShape...)
	for b := 0; b < B; b++ {
		base := b * L * C
		for t := 0; t < lout; t++ {
			dst := gradIn.Data[base+t*C : base+t*C+win]
			for j, v := range dPatches.RawRowView(b*lout + t) {
				dst[j] += v
			}
		}
	}
	return gradIn, nil
}

func (c *Conv1D) OutputShape(in []int) ([]int, error) {
	if len(in) != 2 || in[0]-c.Kernel+1 < 1 {
		return nil, shapeErr(c.Tag(), "cannot convolve %v", in)
	}
	return []int{in[0] - c.Kernel + 1, c.Filters}, nil
}

func (c *Conv1D) Params() []*Param { return []*Param{c.W, c.B} }
func (c *Conv1D) Name() string     { return c.name }
func (c *Conv1D) Tag() string {
	return fmt.Sprintf("Conv1D_%dx%d", c.Filters, c.Kernel)
}
