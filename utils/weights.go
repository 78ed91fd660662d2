package utils

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"

	"magpie/nn"
	"magpie/tensor"
)

// WeightsVersion is written into every weights file.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for one parameter.
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all parameters of a model, keyed by name.
type ModelWeights struct {
	Version      string                 `json:"version"`
	Architecture string                 `json:"architecture"`
	InputShape   []int                  `json:"input_shape"`
	Layers       map[string]*WeightData `json:"layers"`
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return errors.Wrapf(os.WriteFile(filepath, data, 0o644), "failed to write %s", filepath)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights file")
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal weights")
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) (*tensor.Tensor, error) {
	t, err := tensor.FromData(wd.Data, wd.Shape...)
	return t, errors.Wrapf(err, "weights %s", wd.Name)
}

// ModelWeightsFrom snapshots every parameter of m.
func ModelWeightsFrom(m *nn.Model) *ModelWeights {
	w := &ModelWeights{
		Version:      WeightsVersion,
		Architecture: m.Name,
		InputShape:   append([]int{}, m.InputShape...),
		Layers:       map[string]*WeightData{},
	}
	for name, t := range m.Weights() {
		w.Layers[name] = TensorToWeightData(name, t)
	}
	return w
}

// ApplyWeights loads w into m. The architecture and every parameter shape
// must match.
func ApplyWeights(m *nn.Model, w *ModelWeights) error {
	if w.Architecture != m.Name {
		return errors.Wrapf(nn.ErrInvalidArgument, "weights are for %q, model is %q", w.Architecture, m.Name)
	}
	if w.Version != WeightsVersion {
		return errors.Wrapf(nn.ErrInvalidArgument, "unsupported weights version %q", w.Version)
	}
	values := make(map[string]*tensor.Tensor, len(w.Layers))
	for name, wd := range w.Layers {
		t, err := WeightDataToTensor(wd)
		if err != nil {
			return err
		}
		values[name] = t
	}
	return m.SetWeights(values)
}
