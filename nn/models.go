package nn

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"magpie/config"
	"magpie/nn/layers"
)

// Model kinds accepted by GetModel.
const (
	KindCNN = "cnn"
	KindRNN = "rnn"
)

// CNN hyperparameters.
const (
	NbFilter   = 256
	CNNDropout = 0.25
)

// NgramLengths are the convolution window sizes, one input branch each.
var NgramLengths = []int{1, 2, 3, 4, 5}

// RNN hyperparameters.
const (
	HiddenLayerSize = 256
	RNNDropout      = 0.1
)

type options struct {
	sampleLength int
	seed         int64
}

// Option tweaks model construction.
type Option func(*options)

// WithSampleLength overrides the number of timesteps per sample.
func WithSampleLength(n int) Option {
	return func(o *options) { o.sampleLength = n }
}

// WithSeed makes weight initialization and dropout deterministic.
// Zero picks a time-based seed.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

func buildOptions(opts []Option) options {
	o := options{sampleLength: config.DefaultSampleLength}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) source() rand.Source {
	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.NewSource(uint64(seed))
}

// GetModel returns a compiled model of the given kind for inputs of
// [B, sampleLength, embeddingSize] and outputLength labels.
func GetModel(kind string, embeddingSize, outputLength int, opts ...Option) (*Model, error) {
	switch kind {
	case KindCNN:
		return CNN(embeddingSize, outputLength, opts...)
	case KindRNN:
		return RNN(embeddingSize, outputLength, opts...)
	default:
		return nil, invalidArgument("unknown NN type: %s", kind)
	}
}

func checkSizes(o options, embeddingSize, outputLength int) error {
	if o.sampleLength <= 0 || embeddingSize <= 0 || outputLength <= 0 {
		return invalidArgument("sample length, embedding size and output length must be positive, got %d, %d, %d",
			o.sampleLength, embeddingSize, outputLength)
	}
	return nil
}

// CNN builds one Conv1D → PReLU → global MaxPool1D branch per n-gram
// length, concatenates them and classifies with dropout and a softmax
// Dense. It is compiled with categorical cross-entropy and Nesterov SGD.
func CNN(embeddingSize, outputLength int, opts ...Option) (*Model, error) {
	o := buildOptions(opts)
	if err := checkSizes(o, embeddingSize, outputLength); err != nil {
		return nil, err
	}
	for _, k := range NgramLengths {
		if k > o.sampleLength {
			return nil, invalidArgument("sample length %d is shorter than n-gram length %d", o.sampleLength, k)
		}
	}
	src := o.source()

	branches := make([]*Sequential, len(NgramLengths))
	for i, k := range NgramLengths {
		steps := o.sampleLength - k + 1
		branches[i] = &Sequential{Layers: []layers.Layer{
			layers.NewConv1D(fmt.Sprintf("conv1d_%d", i+1), embeddingSize, NbFilter, k, src),
			layers.NewPReLU(fmt.Sprintf("p_re_lu_%d", i+1), steps, NbFilter),
			layers.NewMaxPool1D(fmt.Sprintf("max_pooling1d_%d", i+1), steps),
		}}
	}
	dense, err := layers.NewDense("dense_1", len(NgramLengths)*NbFilter, outputLength, layers.Softmax, src)
	if err != nil {
		return nil, err
	}
	head := &Sequential{Layers: []layers.Layer{
		layers.NewDropout("dropout_1", CNNDropout, src),
		layers.NewFlatten("flatten_1"),
		dense,
	}}

	m, err := NewModel(KindCNN, []int{o.sampleLength, embeddingSize}, branches, layers.NewConcatenate("concatenate_1"), head)
	if err != nil {
		return nil, err
	}
	m.Compile(CategoricalCrossEntropy{}, NewSGD(0.01, 1e-6, 0.9, true), CategoricalAccuracy{})
	logBuilt(m, o)
	return m, nil
}

// RNN builds GRU → BatchNorm → Dropout → softmax Dense over a single input.
// It is compiled with categorical cross-entropy and Adam.
func RNN(embeddingSize, outputLength int, opts ...Option) (*Model, error) {
	o := buildOptions(opts)
	if err := checkSizes(o, embeddingSize, outputLength); err != nil {
		return nil, err
	}
	src := o.source()

	gru, err := layers.NewGRU("gru_1", embeddingSize, HiddenLayerSize, src)
	if err != nil {
		return nil, err
	}
	dense, err := layers.NewDense("dense_1", HiddenLayerSize, outputLength, layers.Softmax, src)
	if err != nil {
		return nil, err
	}
	branch := &Sequential{Layers: []layers.Layer{gru}}
	head := &Sequential{Layers: []layers.Layer{
		layers.NewBatchNorm("batch_normalization_1", HiddenLayerSize),
		layers.NewDropout("dropout_1", RNNDropout, src),
		dense,
	}}

	m, err := NewModel(KindRNN, []int{o.sampleLength, embeddingSize}, []*Sequential{branch}, nil, head)
	if err != nil {
		return nil, err
	}
	m.Compile(CategoricalCrossEntropy{}, NewAdam(), CategoricalAccuracy{})
	logBuilt(m, o)
	return m, nil
}

func logBuilt(m *Model, o options) {
	trainable, frozen := m.CountParams()
	log.WithFields(log.Fields{
		"model":         m.Name,
		"inputs":        m.NumInputs(),
		"input_shape":   m.InputShape,
		"sample_length": o.sampleLength,
		"trainable":     trainable,
		"non_trainable": frozen,
	}).Debug("model built")
}
