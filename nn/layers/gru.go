package layers

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"magpie/tensor"
)

// GRU is a gated recurrent unit that returns its last hidden state.
//
//	z  = hard_sigmoid(x·Wz + h·Uz + bz)
//	r  = hard_sigmoid(x·Wr + h·Ur + br)
//	hh = tanh(x·Wh + (r∘h)·Uh + bh)
//	h' = z∘h + (1-z)∘hh
//
// Kernel [In, 3H], recurrent kernel [H, 3H] and bias [3H] hold the z, r, h
// gates side by side in that order. The initial state is zero.
type GRU struct {
	name  string
	Units int
	W     *Param // kernel
	U     *Param // recurrent kernel
	B     *Param

	steps   []gruStep
	inShape []int
}

// gruStep caches one timestep for backpropagation through time.
type gruStep struct {
	x      *mat.Dense // [B, In]
	hPrev  *mat.Dense // [B, H]
	preZ   *mat.Dense
	preR   *mat.Dense
	z, r   *mat.Dense
	hh     *mat.Dense
	rhPrev *mat.Dense
}

// NewGRU builds a GRU with glorot_uniform kernel, orthogonal recurrent
// kernel and zero bias.
func NewGRU(name string, in, units int, src rand.Source) (*GRU, error) {
	g := &GRU{
		name:  name,
		Units: units,
		W:     newParam(name+"/kernel", in, 3*units),
		U:     newParam(name+"/recurrent_kernel", units, 3*units),
		B:     newParam(name+"/bias", 3*units),
	}
	GlorotUniform(g.W.Value, in, 3*units, src)
	if err := Orthogonal(g.U.Value, units, 3*units, src); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GRU) gate(m *mat.Dense, k int) *mat.Dense {
	rows, _ := m.Dims()
	return m.Slice(0, rows, k*g.Units, (k+1)*g.Units).(*mat.Dense)
}

func (g *GRU) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	B, L, In, err := dims3(g.Tag(), x)
	if err != nil {
		return nil, err
	}
	if In != g.W.Value.Shape[0] {
		return nil, shapeErr(g.Tag(), "expects %d features, got %d", g.W.Value.Shape[0], In)
	}
	H := g.Units
	W := g.W.Value.Matrix()
	U := g.U.Value.Matrix()
	bias := g.B.Value.Data

	g.inShape = append(g.inShape[:0], x.Shape...)
	g.steps = g.steps[:0]
	h := mat.NewDense(B, H, nil)
	for t := 0; t < L; t++ {
		xt := mat.NewDense(B, In, nil)
		for b := 0; b < B; b++ {
			copy(xt.RawRowView(b), x.Data[(b*L+t)*In:(b*L+t+1)*In])
		}
		var xw mat.Dense
		xw.Mul(xt, W)

		var hu mat.Dense
		hu.Mul(h, U.Slice(0, H, 0, 2*H))

		st := gruStep{
			x:      xt,
			hPrev:  h,
			preZ:   mat.NewDense(B, H, nil),
			preR:   mat.NewDense(B, H, nil),
			z:      mat.NewDense(B, H, nil),
			r:      mat.NewDense(B, H, nil),
			hh:     mat.NewDense(B, H, nil),
			rhPrev: mat.NewDense(B, H, nil),
		}
		for b := 0; b < B; b++ {
			xwRow, huRow := xw.RawRowView(b), hu.RawRowView(b)
			for j := 0; j < H; j++ {
				pz := xwRow[j] + huRow[j] + bias[j]
				pr := xwRow[H+j] + huRow[H+j] + bias[H+j]
				st.preZ.Set(b, j, pz)
				st.preR.Set(b, j, pr)
				st.z.Set(b, j, HardSigmoid(pz))
				r := HardSigmoid(pr)
				st.r.Set(b, j, r)
				st.rhPrev.Set(b, j, r*h.At(b, j))
			}
		}
		var rhu mat.Dense
		rhu.Mul(st.rhPrev, U.Slice(0, H, 2*H, 3*H))

		next := mat.NewDense(B, H, nil)
		for b := 0; b < B; b++ {
			xwRow, rhuRow := xw.RawRowView(b), rhu.RawRowView(b)
			for j := 0; j < H; j++ {
				hh := math.Tanh(xwRow[2*H+j] + rhuRow[j] + bias[2*H+j])
				st.hh.Set(b, j, hh)
				z := st.z.At(b, j)
				next.Set(b, j, z*h.At(b, j)+(1-z)*hh)
			}
		}
		g.steps = append(g.steps, st)
		h = next
	}

	out := tensor.New(B, H)
	out.Matrix().Copy(h)
	return out, nil
}

func (g *GRU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(g.steps) == 0 {
		return nil, ErrNoForward
	}
	B, L, In := g.inShape[0], g.inShape[1], g.inShape[2]
	H := g.Units
	if gradOut.Size() != B*H {
		return nil, shapeErr(g.Tag(), "gradient %v does not match output [%d %d]", gradOut.Shape, B, H)
	}
	W := g.W.Value.Matrix()
	U := g.U.Value.Matrix()
	dW := g.W.Grad.Matrix()
	dU := g.U.Grad.Matrix()
	dW.Zero()
	dU.Zero()
	g.B.Grad.Zero()
	db := g.B.Grad.Data

	gradIn := tensor.New(g.inShape...)
	dh := mat.DenseCopyOf(gradOut.Matrix())
	for t := L - 1; t >= 0; t-- {
		st := g.steps[t]
		// pre-activation gradients, gates side by side like the kernel
		dPre := mat.NewDense(B, 3*H, nil)
		dhPrev := mat.NewDense(B, H, nil)
		for b := 0; b < B; b++ {
			row := dPre.RawRowView(b)
			for j := 0; j < H; j++ {
				d := dh.At(b, j)
				z, hh, hp := st.z.At(b, j), st.hh.At(b, j), st.hPrev.At(b, j)
				row[j] = d * (hp - hh) * HardSigmoidGrad(st.preZ.At(b, j))
				row[2*H+j] = d * (1 - z) * (1 - hh*hh)
				dhPrev.Set(b, j, d*z)
			}
		}
		dPreH := g.gate(dPre, 2)

		// through (r∘h)·Uh
		var dRH mat.Dense
		dRH.Mul(dPreH, U.Slice(0, H, 2*H, 3*H).T())
		for b := 0; b < B; b++ {
			row := dPre.RawRowView(b)
			for j := 0; j < H; j++ {
				d := dRH.At(b, j)
				row[H+j] = d * st.hPrev.At(b, j) * HardSigmoidGrad(st.preR.At(b, j))
				dhPrev.Set(b, j, dhPrev.At(b, j)+d*st.r.At(b, j))
			}
		}

		var tmp mat.Dense
		tmp.Mul(st.x.T(), dPre)
		dW.Add(dW, &tmp)

		dUzr := dU.Slice(0, H, 0, 2*H).(*mat.Dense)
		var tzr mat.Dense
		tzr.Mul(st.hPrev.T(), dPre.Slice(0, B, 0, 2*H))
		dUzr.Add(dUzr, &tzr)
		dUh := dU.Slice(0, H, 2*H, 3*H).(*mat.Dense)
		var th mat.Dense
		th.Mul(st.rhPrev.T(), dPreH)
		dUh.Add(dUh, &th)

		for b := 0; b < B; b++ {
			for k, v := range dPre.RawRowView(b) {
				db[k] += v
			}
		}

		var dhzr mat.Dense
		dhzr.Mul(dPre.Slice(0, B, 0, 2*H), U.Slice(0, H, 0, 2*H).T())
		dhPrev.Add(dhPrev, &dhzr)

		var dx mat.Dense
		dx.Mul(dPre, W.T())
		for b := 0; b < B; b++ {
			copy(gradIn.Data[(b*L+t)*In:(b*L+t+1)*In], dx.RawRowView(b))
		}
		dh = dhPrev
	}
	return gradIn, nil
}

func (g *GRU) OutputShape(in []int) ([]int, error) {
	if len(in) != 2 || in[1] != g.W.Value.Shape[0] {
		return nil, shapeErr(g.Tag(), "expects [L, %d], got %v", g.W.Value.Shape[0], in)
	}
	return []int{g.Units}, nil
}

func (g *GRU) Params() []*Param { return []*Param{g.W, g.U, g.B} }
func (g *GRU) Name() string     { return g.name }
func (g *GRU) Tag() string      { return fmt.Sprintf("GRU_%d", g.Units) }
