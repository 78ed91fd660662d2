package layers

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation names accepted by Dense.
const (
	Linear  = ""
	Softmax = "softmax"
)

// HardSigmoid is clip(0.2*x + 0.5, 0, 1).
func HardSigmoid(x float64) float64 {
	y := 0.2*x + 0.5
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// HardSigmoidGrad is the derivative of HardSigmoid at x.
func HardSigmoidGrad(x float64) float64 {
	if x <= -2.5 || x >= 2.5 {
		return 0
	}
	return 0.2
}

// SoftmaxRows applies a numerically stable softmax to every row of m in place.
func SoftmaxRows(m *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		maxLogit := row[0]
		for _, v := range row[1:cols] {
			if v > maxLogit {
				maxLogit = v
			}
		}
		sum := 0.0
		for j := range row[:cols] {
			row[j] = math.Exp(row[j] - maxLogit)
			sum += row[j]
		}
		for j := range row[:cols] {
			row[j] /= sum
		}
	}
}

// softmaxBackward turns dL/dp into dL/dz for p = softmax(z), row-wise.
func softmaxBackward(p, g *mat.Dense) *mat.Dense {
	rows, cols := p.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		pr, gr, or := p.RawRowView(i), g.RawRowView(i), out.RawRowView(i)
		dot := 0.0
		for j := 0; j < cols; j++ {
			dot += pr[j] * gr[j]
		}
		for j := 0; j < cols; j++ {
			or[j] = pr[j] * (gr[j] - dot)
		}
	}
	return out
}
