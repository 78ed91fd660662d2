package config

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Defaults used when neither a config file nor the environment sets a value.
const (
	DefaultSampleLength  = 200
	DefaultEmbeddingSize = 100
	DefaultArchitecture  = "cnn"
	DefaultBatchSize     = 64
)

// Config holds model construction settings.
type Config struct {
	Architecture  string
	SampleLength  int
	EmbeddingSize int
	BatchSize     int
	Seed          int64
	Logger        LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string
}

// Load reads defaults, then the optional config file at path, then
// MAGPIE_-prefixed environment variables (MAGPIE_SAMPLE_LENGTH, ...).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("nn_architecture", DefaultArchitecture)
	v.SetDefault("sample_length", DefaultSampleLength)
	v.SetDefault("embedding_size", DefaultEmbeddingSize)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("seed", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	// Env
	v.SetEnvPrefix("MAGPIE")
	v.AutomaticEnv()

	cfg := &Config{
		Architecture:  v.GetString("nn_architecture"),
		SampleLength:  v.GetInt("sample_length"),
		EmbeddingSize: v.GetInt("embedding_size"),
		BatchSize:     v.GetInt("batch_size"),
		Seed:          v.GetInt64("seed"),
		Logger: LoggerConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
	return cfg, nil
}

// Validate rejects unknown architectures and non-positive sizes.
func (c *Config) Validate() error {
	if c.Architecture != "cnn" && c.Architecture != "rnn" {
		return errors.Newf("nn_architecture must be cnn or rnn, got %q", c.Architecture)
	}
	if c.SampleLength <= 0 {
		return errors.New("sample length must be positive")
	}
	if c.EmbeddingSize <= 0 {
		return errors.New("embedding size must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	return nil
}

// InitLogger applies the logger level and format to the standard logrus
// logger. Unknown levels fall back to info.
func (c *Config) InitLogger() {
	level, err := log.ParseLevel(c.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
