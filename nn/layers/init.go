package layers

import (
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"magpie/tensor"
)

func fillUniform(t *tensor.Tensor, limit float64, src rand.Source) {
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
}

// HeUniform draws from U(-sqrt(6/fanIn), sqrt(6/fanIn)).
func HeUniform(t *tensor.Tensor, fanIn int, src rand.Source) {
	fillUniform(t, math.Sqrt(6/float64(fanIn)), src)
}

// GlorotUniform draws from U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func GlorotUniform(t *tensor.Tensor, fanIn, fanOut int, src rand.Source) {
	fillUniform(t, math.Sqrt(6/float64(fanIn+fanOut)), src)
}

// Orthogonal fills the rows×cols tensor t with a (semi-)orthogonal matrix:
// orthonormal rows when rows <= cols, orthonormal columns otherwise.
func Orthogonal(t *tensor.Tensor, rows, cols int, src rand.Source) error {
	if rows*cols != t.Size() {
		return errors.Wrapf(tensor.ErrShape, "orthogonal: %dx%d does not match %v", rows, cols, t.Shape)
	}
	// factorize the tall orientation, then transpose back if needed
	tall, short := rows, cols
	if rows < cols {
		tall, short = cols, rows
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	a := mat.NewDense(tall, short, nil)
	for i := 0; i < tall; i++ {
		for j := 0; j < short; j++ {
			a.Set(i, j, normal.Rand())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	thin := mat.DenseCopyOf(q.Slice(0, tall, 0, short))
	for j := 0; j < short; j++ {
		if r.At(j, j) < 0 {
			for i := 0; i < tall; i++ {
				thin.Set(i, j, -thin.At(i, j))
			}
		}
	}
	dst := mat.NewDense(rows, cols, t.Data)
	if rows < cols {
		dst.Copy(thin.T())
	} else {
		dst.Copy(thin)
	}
	return nil
}
