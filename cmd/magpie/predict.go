package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"magpie/nn"
	"magpie/tensor"
)

// loadSamples reads a JSON array of [timesteps][embedding] matrices into a
// [B, timesteps, embedding] tensor.
func loadSamples(path string, inputShape []int) (*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read samples")
	}
	var raw [][][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal samples")
	}
	return samplesTensor(raw, inputShape)
}

func samplesTensor(raw [][][]float64, inputShape []int) (*tensor.Tensor, error) {
	L, E := inputShape[0], inputShape[1]
	if len(raw) == 0 {
		return nil, errors.Wrap(nn.ErrInvalidArgument, "no samples")
	}
	x := tensor.New(len(raw), L, E)
	for b, sample := range raw {
		if len(sample) != L {
			return nil, errors.Wrapf(tensor.ErrShape, "sample %d has %d timesteps, want %d", b, len(sample), L)
		}
		for t, vec := range sample {
			if len(vec) != E {
				return nil, errors.Wrapf(tensor.ErrShape, "sample %d step %d has %d values, want %d", b, t, len(vec), E)
			}
			copy(x.Data[(b*L+t)*E:], vec)
		}
	}
	return x, nil
}

// predict feeds the same samples to every model input.
func predict(m *nn.Model, x *tensor.Tensor) (*tensor.Tensor, error) {
	inputs := make([]*tensor.Tensor, m.NumInputs())
	for i := range inputs {
		inputs[i] = x
	}
	return m.Predict(inputs...)
}

type scored struct {
	label string
	prob  float64
}

func topPredictions(row []float64, names []string, k int) []scored {
	out := make([]scored, len(row))
	for i, p := range row {
		label := fmt.Sprintf("label_%d", i)
		if i < len(names) {
			label = names[i]
		}
		out[i] = scored{label: label, prob: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].prob > out[j].prob })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func printPredictions(w io.Writer, probs *tensor.Tensor, names []string, k int) {
	m := probs.Matrix()
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		fmt.Fprintf(w, "sample %d:", i)
		for _, s := range topPredictions(m.RawRowView(i), names, k) {
			fmt.Fprintf(w, " %s=%.4f", s.label, s.prob)
		}
		fmt.Fprintln(w)
	}
}
