package layers

import (
	"math"

	"magpie/tensor"
)

// BatchNorm normalizes [B, D] activations per feature.
// Training uses batch statistics and updates the moving averages.
// Inference uses the moving averages only.
type BatchNorm struct {
	name     string
	Momentum float64
	Epsilon  float64

	Gamma, Beta    *Param
	MovingMean     *Param
	MovingVariance *Param

	xhat   *tensor.Tensor
	invStd []float64
}

// NewBatchNorm returns a BatchNorm over d features with momentum 0.99 and
// epsilon 1e-3.
func NewBatchNorm(name string, d int) *BatchNorm {
	bn := &BatchNorm{
		name:           name,
		Momentum:       0.99,
		Epsilon:        1e-3,
		Gamma:          newParam(name+"/gamma", d),
		Beta:           newParam(name+"/beta", d),
		MovingMean:     newState(name+"/moving_mean", d),
		MovingVariance: newState(name+"/moving_variance", d),
	}
	bn.Gamma.Value.Fill(1)
	bn.MovingVariance.Value.Fill(1)
	return bn
}

func (bn *BatchNorm) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	B, D, err := dims2(bn.Tag(), x)
	if err != nil {
		return nil, err
	}
	if D != bn.Gamma.Value.Size() {
		return nil, shapeErr(bn.Tag(), "expects %d features, got %d", bn.Gamma.Value.Size(), D)
	}
	gamma, beta := bn.Gamma.Value.Data, bn.Beta.Value.Data
	out := tensor.New(B, D)

	if !training {
		bn.xhat = nil
		mm, mv := bn.MovingMean.Value.Data, bn.MovingVariance.Value.Data
		for b := 0; b < B; b++ {
			for j := 0; j < D; j++ {
				i := b*D + j
				out.Data[i] = gamma[j]*(x.Data[i]-mm[j])/math.Sqrt(mv[j]+bn.Epsilon) + beta[j]
			}
		}
		return out, nil
	}

	bn.xhat = tensor.New(B, D)
	bn.invStd = make([]float64, D)
	n := float64(B)
	for j := 0; j < D; j++ {
		mean := 0.0
		for b := 0; b < B; b++ {
			mean += x.Data[b*D+j]
		}
		mean /= n
		variance := 0.0
		for b := 0; b < B; b++ {
			d := x.Data[b*D+j] - mean
			variance += d * d
		}
		variance /= n
		inv := 1 / math.Sqrt(variance+bn.Epsilon)
		bn.invStd[j] = inv
		for b := 0; b < B; b++ {
			i := b*D + j
			bn.xhat.Data[i] = (x.Data[i] - mean) * inv
			out.Data[i] = gamma[j]*bn.xhat.Data[i] + beta[j]
		}

		// moving variance tracks the unbiased estimate
		unbiased := variance
		if B > 1 {
			unbiased *= n / (n - 1)
		}
		m := bn.Momentum
		bn.MovingMean.Value.Data[j] = m*bn.MovingMean.Value.Data[j] + (1-m)*mean
		bn.MovingVariance.Value.Data[j] = m*bn.MovingVariance.Value.Data[j] + (1-m)*unbiased
	}
	return out, nil
}

func (bn *BatchNorm) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if bn.xhat == nil {
		return nil, ErrNoForward
	}
	if !tensor.SameShape(gradOut, bn.xhat) {
		return nil, shapeErr(bn.Tag(), "gradient %v does not match input %v", gradOut.Shape, bn.xhat.Shape)
	}
	B, D := bn.xhat.Shape[0], bn.xhat.Shape[1]
	n := float64(B)
	gamma := bn.Gamma.Value.Data
	dGamma, dBeta := bn.Gamma.Grad.Data, bn.Beta.Grad.Data
	gradIn := tensor.New(B, D)
	for j := 0; j < D; j++ {
		sumG, sumGX := 0.0, 0.0
		for b := 0; b < B; b++ {
			i := b*D + j
			sumG += gradOut.Data[i]
			sumGX += gradOut.Data[i] * bn.xhat.Data[i]
		}
		dGamma[j] = sumGX
		dBeta[j] = sumG
		scale := gamma[j] * bn.invStd[j] / n
		for b := 0; b < B; b++ {
			i := b*D + j
			gradIn.Data[i] = scale * (n*gradOut.Data[i] - sumG - bn.xhat.Data[i]*sumGX)
		}
	}
	return gradIn, nil
}

func (bn *BatchNorm) OutputShape(in []int) ([]int, error) {
	if len(in) != 1 || in[0] != bn.Gamma.Value.Size() {
		return nil, shapeErr(bn.Tag(), "expects [%d], got %v", bn.Gamma.Value.Size(), in)
	}
	return []int{in[0]}, nil
}

func (bn *BatchNorm) Params() []*Param {
	return []*Param{bn.Gamma, bn.Beta, bn.MovingMean, bn.MovingVariance}
}
func (bn *BatchNorm) Name() string { return bn.name }
func (bn *BatchNorm) Tag() string  { return "BatchNormalization" }
