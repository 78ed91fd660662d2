package nn

import (
	"math"

	"magpie/nn/layers"
)

// Optimizer applies one update to every trainable parameter using the
// gradients left by the last backward pass. State is keyed by
// parameter name.
type Optimizer interface {
	Name() string
	Step(params []*layers.Param)
}

// SGD is stochastic gradient descent with time-based learning rate decay
// and optional (Nesterov) momentum.
type SGD struct {
	LR       float64
	Decay    float64
	Momentum float64
	Nesterov bool

	iterations int
	velocity   map[string][]float64
}

func NewSGD(lr, decay, momentum float64, nesterov bool) *SGD {
	return &SGD{LR: lr, Decay: decay, Momentum: momentum, Nesterov: nesterov, velocity: map[string][]float64{}}
}

func (o *SGD) Name() string { return "sgd" }

// CurrentLR is the decayed learning rate for the next step.
func (o *SGD) CurrentLR() float64 {
	return o.LR / (1 + o.Decay*float64(o.iterations))
}

func (o *SGD) Step(params []*layers.Param) {
	lr := o.CurrentLR()
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		v, ok := o.velocity[p.Name]
		if !ok {
			v = make([]float64, p.Value.Size())
			o.velocity[p.Name] = v
		}
		w := p.Value.Data
		for i, g := range p.Grad.Data {
			v[i] = o.Momentum*v[i] - lr*g
			if o.Nesterov {
				w[i] += o.Momentum*v[i] - lr*g
			} else {
				w[i] += v[i]
			}
		}
	}
	o.iterations++
}

// Adam keeps bias-corrected running estimates of the first and second
// gradient moments.
type Adam struct {
	LR, Beta1, Beta2, Epsilon float64

	iterations int
	m, v       map[string][]float64
}

// NewAdam returns Adam with lr=0.001, beta1=0.9, beta2=0.999, epsilon=1e-7.
func NewAdam() *Adam {
	return &Adam{
		LR: 0.001, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7,
		m: map[string][]float64{}, v: map[string][]float64{},
	}
}

func (o *Adam) Name() string { return "adam" }

func (o *Adam) Step(params []*layers.Param) {
	o.iterations++
	t := float64(o.iterations)
	lr := o.LR * math.Sqrt(1-math.Pow(o.Beta2, t)) / (1 - math.Pow(o.Beta1, t))
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		m, ok := o.m[p.Name]
		if !ok {
			m = make([]float64, p.Value.Size())
			o.m[p.Name] = m
			o.v[p.Name] = make([]float64, p.Value.Size())
		}
		v := o.v[p.Name]
		w := p.Value.Data
		for i, g := range p.Grad.Data {
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			w[i] -= lr * m[i] / (math.Sqrt(v[i]) + o.Epsilon)
		}
	}
}
