package nn

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"

	"magpie/nn/layers"
	"magpie/tensor"
)

// Model is a layer graph with one Sequential branch per input. Branch
// outputs are joined by Merge (when there is more than one branch) and fed
// through Head.
type Model struct {
	Name string
	// InputShape is the batchless shape every input must have.
	InputShape []int
	Branches   []*Sequential
	Merge      *layers.Concatenate
	Head       *Sequential

	loss      Loss
	optimizer Optimizer
	metrics   []Metric
}

// Result holds the loss and metric values for one batch.
type Result struct {
	Loss    float64
	Metrics map[string]float64
}

// NewModel validates the graph wiring and parameter naming.
func NewModel(name string, inputShape []int, branches []*Sequential, merge *layers.Concatenate, head *Sequential) (*Model, error) {
	if len(branches) == 0 {
		return nil, invalidArgument("model %s has no inputs", name)
	}
	if len(branches) > 1 && merge == nil {
		return nil, invalidArgument("model %s has %d inputs but no merge layer", name, len(branches))
	}
	m := &Model{
		Name:       name,
		InputShape: append([]int(nil), inputShape...),
		Branches:   branches,
		Merge:      merge,
		Head:       head,
	}
	seen := map[string]bool{}
	for _, p := range m.Params() {
		if seen[p.Name] {
			return nil, invalidArgument("model %s: duplicate parameter %s", name, p.Name)
		}
		seen[p.Name] = true
	}
	if _, err := m.OutputShape(); err != nil {
		return nil, errors.Wrapf(err, "model %s", name)
	}
	return m, nil
}

// Compile attaches the loss, optimizer and metrics used by TrainOnBatch
// and Evaluate.
func (m *Model) Compile(loss Loss, optimizer Optimizer, metrics ...Metric) {
	m.loss = loss
	m.optimizer = optimizer
	m.metrics = metrics
}

// Compiled reports whether Compile has been called with a loss and optimizer.
func (m *Model) Compiled() bool { return m.loss != nil && m.optimizer != nil }

// Loss returns the compiled loss, or nil.
func (m *Model) Loss() Loss { return m.loss }

// Optimizer returns the compiled optimizer, or nil.
func (m *Model) Optimizer() Optimizer { return m.optimizer }

// Metrics returns the compiled metrics.
func (m *Model) Metrics() []Metric { return m.metrics }

// NumInputs is the number of tensors Predict expects.
func (m *Model) NumInputs() int { return len(m.Branches) }

// Params lists every parameter, branches first, in a stable order.
func (m *Model) Params() []*layers.Param {
	var ps []*layers.Param
	for _, b := range m.Branches {
		ps = append(ps, b.Params()...)
	}
	return append(ps, m.Head.Params()...)
}

// CountParams returns the trainable and non-trainable parameter counts.
func (m *Model) CountParams() (trainable, frozen int) {
	for _, p := range m.Params() {
		if p.Trainable() {
			trainable += p.Value.Size()
		} else {
			frozen += p.Value.Size()
		}
	}
	return trainable, frozen
}

// OutputShape is the batchless shape of the model output.
func (m *Model) OutputShape() ([]int, error) {
	shapes := make([][]int, len(m.Branches))
	for i, b := range m.Branches {
		s, err := b.OutputShape(m.InputShape)
		if err != nil {
			return nil, err
		}
		shapes[i] = s
	}
	merged := shapes[0]
	if m.Merge != nil {
		var err error
		if merged, err = m.Merge.OutputShape(shapes); err != nil {
			return nil, err
		}
	}
	return m.Head.OutputShape(merged)
}

func (m *Model) checkInputs(inputs []*tensor.Tensor) error {
	if len(inputs) != len(m.Branches) {
		return invalidArgument("model %s expects %d inputs, got %d", m.Name, len(m.Branches), len(inputs))
	}
	batch := -1
	for i, x := range inputs {
		if x == nil || x.Rank() != len(m.InputShape)+1 {
			return shapeError("model %s: input %d must be [B %v]", m.Name, i, m.InputShape)
		}
		for j, d := range m.InputShape {
			if x.Shape[j+1] != d {
				return shapeError("model %s: input %d has shape %v, want [B %v]", m.Name, i, x.Shape, m.InputShape)
			}
		}
		if x.Shape[0] < 1 {
			return invalidArgument("model %s: input %d is an empty batch", m.Name, i)
		}
		if batch >= 0 && x.Shape[0] != batch {
			return shapeError("model %s: input %d has batch %d, want %d", m.Name, i, x.Shape[0], batch)
		}
		batch = x.Shape[0]
	}
	return nil
}

func (m *Model) forward(inputs []*tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if err := m.checkInputs(inputs); err != nil {
		return nil, err
	}
	outs := make([]*tensor.Tensor, len(inputs))
	for i, b := range m.Branches {
		out, err := b.Forward(inputs[i], training)
		if err != nil {
			return nil, err
		}
		outs[i] = out
	}
	merged := outs[0]
	if m.Merge != nil {
		var err error
		if merged, err = m.Merge.Forward(outs); err != nil {
			return nil, err
		}
	}
	return m.Head.Forward(merged, training)
}

func (m *Model) backward(grad *tensor.Tensor) error {
	g, err := m.Head.Backward(grad)
	if err != nil {
		return err
	}
	grads := []*tensor.Tensor{g}
	if m.Merge != nil {
		if grads, err = m.Merge.Backward(g); err != nil {
			return err
		}
	}
	for i, b := range m.Branches {
		if _, err := b.Backward(grads[i]); err != nil {
			return err
		}
	}
	return nil
}

// Predict runs the model in inference mode and returns [B, outputs].
func (m *Model) Predict(inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	return m.forward(inputs, false)
}

func (m *Model) score(pred, targets *tensor.Tensor) (Result, *tensor.Tensor, error) {
	loss, grad, err := m.loss.Compute(pred, targets)
	if err != nil {
		return Result{}, nil, err
	}
	res := Result{Loss: loss, Metrics: make(map[string]float64, len(m.metrics))}
	for _, metric := range m.metrics {
		v, err := metric.Compute(pred, targets)
		if err != nil {
			return Result{}, nil, err
		}
		res.Metrics[metric.Name()] = v
	}
	return res, grad, nil
}

// TrainOnBatch runs one forward, backward and optimizer step. The returned
// loss and metrics are measured before the update.
func (m *Model) TrainOnBatch(inputs []*tensor.Tensor, targets *tensor.Tensor) (Result, error) {
	if !m.Compiled() {
		return Result{}, ErrNotCompiled
	}
	pred, err := m.forward(inputs, true)
	if err != nil {
		return Result{}, err
	}
	res, grad, err := m.score(pred, targets)
	if err != nil {
		return Result{}, err
	}
	if err := m.backward(grad); err != nil {
		return Result{}, err
	}
	m.optimizer.Step(m.Params())
	return res, nil
}

// Evaluate scores a batch in inference mode without updating weights.
func (m *Model) Evaluate(inputs []*tensor.Tensor, targets *tensor.Tensor) (Result, error) {
	if !m.Compiled() {
		return Result{}, ErrNotCompiled
	}
	pred, err := m.forward(inputs, false)
	if err != nil {
		return Result{}, err
	}
	res, _, err := m.score(pred, targets)
	return res, err
}

// Weights returns every parameter value keyed by name. The tensors are
// live; mutate them through SetWeights.
func (m *Model) Weights() map[string]*tensor.Tensor {
	w := map[string]*tensor.Tensor{}
	for _, p := range m.Params() {
		w[p.Name] = p.Value
	}
	return w
}

// SetWeights copies values into the named parameters. Every parameter
// of the model must be present with a matching shape.
func (m *Model) SetWeights(values map[string]*tensor.Tensor) error {
	params := m.Params()
	for _, p := range params {
		v, ok := values[p.Name]
		if !ok {
			return invalidArgument("model %s: missing weights for %s", m.Name, p.Name)
		}
		if !tensor.SameShape(v, p.Value) {
			return shapeError("model %s: %s has shape %v, want %v", m.Name, p.Name, v.Shape, p.Value.Shape)
		}
	}
	if len(values) != len(params) {
		return invalidArgument("model %s: got %d weight tensors, want %d", m.Name, len(values), len(params))
	}
	for _, p := range params {
		copy(p.Value.Data, values[p.Name].Data)
	}
	return nil
}

// Summary writes a layer table with output shapes and parameter counts.
func (m *Model) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Model: %s\n", m.Name)
	fmt.Fprintln(tw, "Layer\tType\tOutput shape\tParams")

	row := func(name, tag string, shape []int, ps []*layers.Param) {
		n := 0
		for _, p := range ps {
			n += p.Value.Size()
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d\n", name, tag, append([]int{-1}, shape...), n)
	}

	shapes := make([][]int, len(m.Branches))
	for i, b := range m.Branches {
		fmt.Fprintf(tw, "input_%d\tInput\t%v\t0\n", i+1, append([]int{-1}, m.InputShape...))
		shape := m.InputShape
		for _, l := range b.Layers {
			var err error
			if shape, err = l.OutputShape(shape); err != nil {
				return err
			}
			row(l.Name(), l.Tag(), shape, l.Params())
		}
		shapes[i] = shape
	}
	shape := shapes[0]
	if m.Merge != nil {
		var err error
		if shape, err = m.Merge.OutputShape(shapes); err != nil {
			return err
		}
		row(m.Merge.Name(), m.Merge.Tag(), shape, nil)
	}
	for _, l := range m.Head.Layers {
		var err error
		if shape, err = l.OutputShape(shape); err != nil {
			return err
		}
		row(l.Name(), l.Tag(), shape, l.Params())
	}

	trainable, frozen := m.CountParams()
	fmt.Fprintf(tw, "Total params: %d\n", trainable+frozen)
	fmt.Fprintf(tw, "Trainable params: %d\n", trainable)
	fmt.Fprintf(tw, "Non-trainable params: %d\n", frozen)
	if m.Compiled() {
		names := make([]string, len(m.metrics))
		for i, metric := range m.metrics {
			names[i] = metric.Name()
		}
		fmt.Fprintf(tw, "Compiled: loss=%s optimizer=%s metrics=%v\n", m.loss.Name(), m.optimizer.Name(), names)
	}
	return tw.Flush()
}
