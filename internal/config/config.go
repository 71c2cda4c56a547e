// Package config loads experiment settings from YAML, .env files and
// CNNLSTM_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/cnnlstm/internal/dataset"
	"github.com/samcharles93/cnnlstm/internal/models"
	"github.com/samcharles93/cnnlstm/internal/train"
)

const (
	ModelBaseline = "baseline"
	ModelCNNLSTM  = "cnn_lstm"
)

var ErrUnknownModel = errors.New("unknown model kind")

// Config is one experiment: which topology to build, its hyperparameters,
// how to train it and where the data lives.
type Config struct {
	Model    string                `yaml:"model"`
	Baseline models.PreModelConfig `yaml:"baseline"`
	CNNLSTM  models.CNNLSTMConfig  `yaml:"cnn_lstm"`
	Training train.Options         `yaml:"training"`
	Data     DataConfig            `yaml:"data"`
	Log      LogConfig             `yaml:"log"`
}

// DataConfig points at JSONL splits. When TrainPath is empty a synthetic
// dataset is generated and TestFraction of it is held out.
type DataConfig struct {
	TrainPath    string                  `yaml:"train"`
	TestPath     string                  `yaml:"test"`
	TestFraction float64                 `yaml:"test_fraction"`
	Synthetic    dataset.SyntheticConfig `yaml:"synthetic"`

	// Vocab is the word index used for text records. It is fitted on the
	// training texts and written here when the file does not exist yet.
	Vocab    string `yaml:"vocab"`
	OOVToken string `yaml:"oov_token"`

	// EmbeddingPath is a .safetensors file seeding the cnn_lstm embedding.
	EmbeddingPath   string `yaml:"embedding"`
	EmbeddingTensor string `yaml:"embedding_tensor"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model:    ModelBaseline,
		Baseline: models.DefaultPreModelConfig(),
		CNNLSTM:  models.DefaultCNNLSTMConfig(),
		Training: train.DefaultOptions(),
		Data: DataConfig{
			TestFraction: 0.2,
			Synthetic: dataset.SyntheticConfig{
				Samples:   600,
				Vocab:     2000,
				MinLength: 20,
				MaxLength: 140,
				Classes:   2,
				Seed:      7,
			},
		},
		Log: LogConfig{Level: "info", Format: "pretty"},
	}
}

// Parse overlays YAML onto the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path, or returns the defaults when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings owned by the CLI. Model hyperparameters are left
// for the framework to reject.
func (c Config) Validate() error {
	switch c.Model {
	case ModelBaseline, ModelCNNLSTM:
		return nil
	default:
		return fmt.Errorf("%q: %w", c.Model, ErrUnknownModel)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides settings from CNNLSTM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CNNLSTM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CNNLSTM_TRAIN_DATA"); v != "" {
		c.Data.TrainPath = v
	}
	if v := os.Getenv("CNNLSTM_TEST_DATA"); v != "" {
		c.Data.TestPath = v
	}
	if v := os.Getenv("CNNLSTM_VOCAB"); v != "" {
		c.Data.Vocab = v
	}
	if v := os.Getenv("CNNLSTM_EMBEDDING"); v != "" {
		c.Data.EmbeddingPath = v
	}
	if v := os.Getenv("CNNLSTM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CNNLSTM_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	maxWords := 0
	for key, dst := range map[string]*int{
		"CNNLSTM_EPOCHS":     &c.Training.Epochs,
		"CNNLSTM_BATCH_SIZE": &c.Training.BatchSize,
		"CNNLSTM_MAX_WORDS":  &maxWords,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	if maxWords != 0 {
		c.SetMaxWords(maxWords)
	}
	return c.Validate()
}

// SetMaxWords sets the input length of both models and the padding length
// together.
func (c *Config) SetMaxWords(n int) {
	c.Baseline.MaxWordsInSentence = n
	c.CNNLSTM.MaxWordsInSentence = n
	c.Training.MaxWordsInSentence = n
}

// MaxWords returns the sequence length of the selected model, which the
// training driver must pad to.
func (c Config) MaxWords() int {
	if c.Model == ModelCNNLSTM {
		return c.CNNLSTM.MaxWordsInSentence
	}
	return c.Baseline.MaxWordsInSentence
}

// MaxFeatures returns the vocabulary size of the selected model. Token ids
// must stay below it.
func (c Config) MaxFeatures() int {
	if c.Model == ModelCNNLSTM {
		return c.CNNLSTM.MaxFeatures
	}
	return c.Baseline.MaxFeatures
}
