package nn

import (
	"magpie/nn/layers"
	"magpie/tensor"
)

// Sequential chains multiple layers in order.
type Sequential struct {
	Layers []layers.Layer
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out, training)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Params collects the parameters of all layers.
func (s *Sequential) Params() []*layers.Param {
	var ps []*layers.Param
	for _, layer := range s.Layers {
		ps = append(ps, layer.Params()...)
	}
	return ps
}

// OutputShape threads a batchless input shape through every layer.
func (s *Sequential) OutputShape(in []int) ([]int, error) {
	shape := in
	var err error
	for _, layer := range s.Layers {
		shape, err = layer.OutputShape(shape)
		if err != nil {
			return nil, err
		}
	}
	return shape, nil
}
