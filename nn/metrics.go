package nn

import (
	"magpie/tensor"
)

// Metric reports a score for a batch of predictions. It never affects
// gradients.
type Metric interface {
	Name() string
	Compute(pred, target *tensor.Tensor) (float64, error)
}

// CategoricalAccuracy is the fraction of rows whose highest prediction is
// the highest target.
type CategoricalAccuracy struct{}

func (CategoricalAccuracy) Name() string { return "categorical_accuracy" }

func (CategoricalAccuracy) Compute(pred, target *tensor.Tensor) (float64, error) {
	if !tensor.SameShape(pred, target) || pred.Rank() != 2 {
		return 0, shapeError("categorical_accuracy: prediction %v vs target %v", pred.Shape, target.Shape)
	}
	p, t := tensor.ArgMaxRows(pred), tensor.ArgMaxRows(target)
	hits := 0
	for i := range p {
		if p[i] == t[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(p)), nil
}
