package nn

import (
	"github.com/cockroachdb/errors"

	"magpie/nn/layers"
	"magpie/tensor"
)

var (
	// ErrInvalidArgument marks bad caller input: an unknown model kind,
	// non-positive sizes or the wrong number of model inputs.
	ErrInvalidArgument = layers.ErrInvalidArgument
	// ErrNotCompiled is returned when training or evaluating a model that
	// has no loss and optimizer yet.
	ErrNotCompiled = errors.New("model is not compiled")
)

func invalidArgument(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

func shapeError(format string, args ...interface{}) error {
	return errors.Wrapf(tensor.ErrShape, format, args...)
}
