package layers

import (
	"github.com/cockroachdb/errors"

	"magpie/tensor"
)

// Param is a named weight tensor owned by a single layer. Grad is nil for
// non-trainable state such as batch-norm moving statistics.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Trainable reports whether an optimizer should update p.
func (p *Param) Trainable() bool { return p.Grad != nil }

func newParam(name string, shape ...int) *Param {
	return &Param{Name: name, Value: tensor.New(shape...), Grad: tensor.New(shape...)}
}

func newState(name string, shape ...int) *Param {
	return &Param{Name: name, Value: tensor.New(shape...)}
}

// Layer is a single-input node of a model graph. Shapes passed to
// OutputShape exclude the batch dimension.
type Layer interface {
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
	// Backward takes dL/dy for the last Forward call and returns dL/dx,
	// leaving parameter gradients in Params()[i].Grad.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Params() []*Param
	OutputShape(in []int) ([]int, error)
	Name() string
	Tag() string
}

// ErrInvalidArgument marks bad construction arguments such as an unknown
// activation.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNoForward is returned by Backward when no forward pass was cached.
var ErrNoForward = errors.New("backward called before forward")

func shapeErr(tag string, format string, args ...interface{}) error {
	return errors.Wrapf(tensor.ErrShape, tag+": "+format, args...)
}

// dims3 validates a [B, L, C] tensor.
func dims3(tag string, x *tensor.Tensor) (int, int, int, error) {
	if x == nil || len(x.Shape) != 3 {
		var shape []int
		if x != nil {
			shape = x.Shape
		}
		return 0, 0, 0, shapeErr(tag, "expects [B, L, C], got %v", shape)
	}
	return x.Shape[0], x.Shape[1], x.Shape[2], nil
}

// dims2 validates a [B, D] tensor.
func dims2(tag string, x *tensor.Tensor) (int, int, error) {
	if x == nil || len(x.Shape) != 2 {
		var shape []int
		if x != nil {
			shape = x.Shape
		}
		return 0, 0, shapeErr(tag, "expects [B, D], got %v", shape)
	}
	return x.Shape[0], x.Shape[1], nil
}
