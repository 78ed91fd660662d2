package nn

import (
	"math"

	"magpie/tensor"
)

// Loss scores a batch of predictions and returns dL/dpred.
type Loss interface {
	Name() string
	Compute(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error)
}

// lossEpsilon clips probabilities away from 0 and 1.
const lossEpsilon = 1e-7

// CategoricalCrossEntropy is the mean over the batch of -Σ y·log(p).
// Predictions are expected to be probabilities, e.g. a softmax output.
type CategoricalCrossEntropy struct{}

func (CategoricalCrossEntropy) Name() string { return "categorical_crossentropy" }

func (CategoricalCrossEntropy) Compute(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if !tensor.SameShape(pred, target) || pred.Rank() != 2 {
		return 0, nil, shapeError("categorical_crossentropy: prediction %v vs target %v", pred.Shape, target.Shape)
	}
	batch := float64(pred.Shape[0])
	grad := tensor.New(pred.Shape...)
	loss := 0.0
	for i, y := range target.Data {
		if y == 0 {
			continue
		}
		p := math.Min(math.Max(pred.Data[i], lossEpsilon), 1-lossEpsilon)
		loss -= y * math.Log(p)
		// clipping is flat outside [eps, 1-eps]
		if p == pred.Data[i] {
			grad.Data[i] = -y / p / batch
		}
	}
	return loss / batch, grad, nil
}
