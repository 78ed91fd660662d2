package layers

import (
	"fmt"

	"golang.org/x/exp/rand"

	"magpie/tensor"
)

// Dropout zeroes a Rate fraction of activations during training and scales
// the survivors by 1/(1-Rate). It is the identity at inference.
type Dropout struct {
	name string
	Rate float64

	rng  *rand.Rand
	mask []float64
}

func NewDropout(name string, rate float64, src rand.Source) *Dropout {
	return &Dropout{name: name, Rate: rate, rng: rand.New(src)}
}

func (d *Dropout) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if !training || d.Rate <= 0 {
		d.mask = nil
		return x.Clone(), nil
	}
	keep := 1 - d.Rate
	d.mask = make([]float64, x.Size())
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if d.rng.Float64() < keep {
			d.mask[i] = 1 / keep
			out.Data[i] = v / keep
		}
	}
	return out, nil
}

func (d *Dropout) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if d.mask == nil {
		return gradOut.Clone(), nil
	}
	if gradOut.Size() != len(d.mask) {
		return nil, shapeErr(d.Tag(), "gradient %v does not match mask", gradOut.Shape)
	}
	gradIn := tensor.New(gradOut.Shape...)
	for i, g := range gradOut.Data {
		gradIn.Data[i] = g * d.mask[i]
	}
	return gradIn, nil
}

func (d *Dropout) OutputShape(in []int) ([]int, error) { return append([]int(nil), in...), nil }
func (d *Dropout) Params() []*Param                    { return nil }
func (d *Dropout) Name() string                        { return d.name }
func (d *Dropout) Tag() string                         { return fmt.Sprintf("Dropout_%.2f", d.Rate) }
