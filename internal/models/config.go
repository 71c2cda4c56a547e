package models

import "github.com/samcharles93/cnnlstm/internal/nn"

// PreModelConfig holds the hyperparameters of the baseline binary
// classifier.
type PreModelConfig struct {
	BorderMode         string `yaml:"border_mode"`
	Activation         string `yaml:"activation"`
	Optimizer          string `yaml:"optimizer"`
	LSTMOutputSize     int    `yaml:"lstm_output_size"`
	PoolLength         int    `yaml:"pool_length"`
	NbFilter           int    `yaml:"nb_filter"`
	FilterLength       int    `yaml:"filter_length"`
	EmbeddingSize      int    `yaml:"embedding_size"`
	MaxWordsInSentence int    `yaml:"max_words_in_sentence"`
	MaxFeatures        int    `yaml:"max_features"`
	Seed               int64  `yaml:"seed"`
}

// DefaultPreModelConfig returns the baseline hyperparameters.
func DefaultPreModelConfig() PreModelConfig {
	return PreModelConfig{
		BorderMode:         "valid",
		Activation:         "relu",
		Optimizer:          "adam",
		LSTMOutputSize:     70,
		PoolLength:         2,
		NbFilter:           64,
		FilterLength:       3,
		EmbeddingSize:      128,
		MaxWordsInSentence: 100,
		MaxFeatures:        20000,
		Seed:               1337,
	}
}

// CNNLSTMConfig holds the hyperparameters of the configurable multi-class
// classifier.
type CNNLSTMConfig struct {
	Stateful           bool       `yaml:"stateful"`
	Convolutional      bool       `yaml:"convolutional"`
	Loss               string     `yaml:"loss"`
	BorderMode         string     `yaml:"border_mode"`
	Activation         string     `yaml:"activation"`
	Optimizer          string     `yaml:"optimizer"`
	NbClass            int        `yaml:"nb_class"`
	LSTMOutputSize     int        `yaml:"lstm_output_size"`
	PoolLength         int        `yaml:"pool_length"`
	NbFilter           int        `yaml:"nb_filter"`
	FilterLength       int        `yaml:"filter_length"`
	EmbeddingSize      int        `yaml:"embedding_size"`
	MaxWordsInSentence int        `yaml:"max_words_in_sentence"`
	MaxFeatures        int        `yaml:"max_features"`
	Dropouts           [3]float64 `yaml:"dropouts"`
	Seed               int64      `yaml:"seed"`

	// PretrainedEmbedding seeds the embedding layer when set.
	PretrainedEmbedding nn.WeightSource `yaml:"-"`
}

// DefaultCNNLSTMConfig returns the configurable model's hyperparameters.
func DefaultCNNLSTMConfig() CNNLSTMConfig {
	return CNNLSTMConfig{
		Convolutional:      true,
		Loss:               "categorical_crossentropy",
		BorderMode:         "valid",
		Activation:         "relu",
		Optimizer:          "rmsprop",
		NbClass:            5,
		LSTMOutputSize:     70,
		PoolLength:         2,
		NbFilter:           64,
		FilterLength:       3,
		EmbeddingSize:      128,
		MaxWordsInSentence: 100,
		MaxFeatures:        20000,
		Dropouts:           [3]float64{0.25, 0.2, 0.25},
		Seed:               1337,
	}
}
