// magpie: build, inspect and run the CNN/RNN text classifiers
//
// Usage:
//
//	magpie --model=cnn --embedding=100 --labels=10 --summary --save=weights.json
//	magpie --model=cnn --labels=10 --load=weights.json --predict=samples.json --topk=3
package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"magpie/config"
	"magpie/nn"
	"magpie/utils"
)

var (
	configFile   = flag.String("config", "", "Optional config file (yaml, json or toml)")
	modelType    = flag.String("model", "", "Model type: cnn, rnn (overrides config)")
	embedding    = flag.Int("embedding", 0, "Embedding size (overrides config)")
	sampleLength = flag.Int("sample-length", 0, "Timesteps per sample (overrides config)")
	labels       = flag.Int("labels", 0, "Number of output labels")
	labelNames   = flag.String("label-names", "", "Comma-separated label names for predictions")
	seed         = flag.Int64("seed", 0, "Random seed, 0 for time-based (overrides config)")
	summary      = flag.Bool("summary", false, "Print the model summary")
	saveFile     = flag.String("save", "", "Write model weights to this JSON file")
	loadFile     = flag.String("load", "", "Load model weights from this JSON file")
	predictFile  = flag.String("predict", "", "JSON file of [samples][timesteps][embedding] to classify")
	topK         = flag.Int("topk", 3, "Top predictions to show per sample")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stats := &utils.TimingStats{}
	defer utils.LogTimingStats(stats)
	defer utils.Track(&stats.TotalTime)()

	stopConfig := utils.Track(&stats.ConfigTime)
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	cfg.InitLogger()
	if err := cfg.Validate(); err != nil {
		return err
	}
	stopConfig()

	names := splitNames(*labelNames)
	outputLength, err := labelCount(names, *labels)
	if err != nil {
		return err
	}

	stopInit := utils.Track(&stats.ModelInitTime)
	model, err := nn.GetModel(cfg.Architecture, cfg.EmbeddingSize, outputLength,
		nn.WithSampleLength(cfg.SampleLength), nn.WithSeed(cfg.Seed))
	if err != nil {
		return err
	}
	stopInit()
	log.WithFields(log.Fields{
		"model":         cfg.Architecture,
		"embedding":     cfg.EmbeddingSize,
		"sample_length": cfg.SampleLength,
		"labels":        outputLength,
	}).Info("model ready")

	if *loadFile != "" {
		stop := utils.Track(&stats.WeightsIOTime)
		weights, err := utils.LoadWeights(*loadFile)
		if err != nil {
			return err
		}
		if err := utils.ApplyWeights(model, weights); err != nil {
			return err
		}
		stop()
		log.Infof("loaded %d weight tensors from %s", len(weights.Layers), *loadFile)
	}

	if *summary {
		if err := model.Summary(os.Stdout); err != nil {
			return err
		}
	}

	if *predictFile != "" {
		stop := utils.Track(&stats.PredictTime)
		samples, err := loadSamples(*predictFile, model.InputShape)
		if err != nil {
			return err
		}
		probs, err := predict(model, samples)
		if err != nil {
			return err
		}
		stop()
		printPredictions(os.Stdout, probs, names, *topK)
	}

	if *saveFile != "" {
		stop := utils.Track(&stats.WeightsIOTime)
		if err := utils.SaveWeights(*saveFile, utils.ModelWeightsFrom(model)); err != nil {
			return err
		}
		stop()
		log.Infof("saved weights to %s", *saveFile)
	}
	return nil
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Architecture = *modelType
		case "embedding":
			cfg.EmbeddingSize = *embedding
		case "sample-length":
			cfg.SampleLength = *sampleLength
		case "seed":
			cfg.Seed = *seed
		}
	})
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
}

// labelCount resolves the output length from -labels, falling back to the
// number of names when -labels is unset.
func labelCount(names []string, labels int) (int, error) {
	if labels == 0 {
		labels = len(names)
	}
	if len(names) > 0 && len(names) != labels {
		return 0, errors.Mark(errors.Newf("%d label names given for %d labels", len(names), labels), nn.ErrInvalidArgument)
	}
	return labels, nil
}

func splitNames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
