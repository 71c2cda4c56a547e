// Package models assembles and compiles the CNN+LSTM text classifiers.
//
// The factories only stack layers and pick a loss and optimizer. They do not
// validate hyperparameters; a malformed configuration fails when the nn
// package builds the topology, and that error is returned as is.
package models

import (
	"github.com/samcharles93/cnnlstm/internal/nn"
)

// ConstructPreModel builds the baseline binary classifier:
// embedding, dropout, convolution, max pooling, LSTM and a single sigmoid
// unit, compiled with binary cross-entropy.
func ConstructPreModel(cfg PreModelConfig) (*nn.Sequential, error) {
	m := nn.NewSequential(nn.WithSeed(cfg.Seed))
	m.Add(nn.NewEmbedding(cfg.MaxFeatures, cfg.EmbeddingSize, cfg.MaxWordsInSentence))
	m.Add(nn.NewDropout(0.25))
	m.Add(nn.NewConv1D(cfg.NbFilter, cfg.FilterLength, cfg.BorderMode, cfg.Activation))
	m.Add(nn.NewMaxPool1D(cfg.PoolLength))
	m.Add(nn.NewLSTM(cfg.LSTMOutputSize))
	m.Add(nn.NewDense(1, "sigmoid"))

	if err := m.Compile("binary_crossentropy", cfg.Optimizer); err != nil {
		return nil, err
	}
	return m, nil
}

// ConstructCNNLSTM builds the configurable classifier. The convolution block
// is present only when cfg.Convolutional is set. A stateful model chains two
// stateful LSTMs with dropout between them; otherwise a single LSTM is used.
// The output is a softmax over cfg.NbClass classes.
func ConstructCNNLSTM(cfg CNNLSTMConfig) (*nn.Sequential, error) {
	m := nn.NewSequential(nn.WithSeed(cfg.Seed))

	emb := nn.NewEmbedding(cfg.MaxFeatures, cfg.EmbeddingSize, cfg.MaxWordsInSentence)
	if cfg.PretrainedEmbedding != nil {
		emb.InitialWeights = cfg.PretrainedEmbedding.Weights()
	}
	m.Add(emb)
	m.Add(nn.NewDropout(cfg.Dropouts[0]))

	if cfg.Convolutional {
		m.Add(nn.NewConv1D(cfg.NbFilter, cfg.FilterLength, cfg.BorderMode, cfg.Activation))
		m.Add(nn.NewMaxPool1D(cfg.PoolLength))
		m.Add(nn.NewDropout(cfg.Dropouts[1]))
	}

	if cfg.Stateful {
		m.Add(nn.NewLSTM(cfg.LSTMOutputSize, nn.ReturnSequences(), nn.WithStatefulness()))
		m.Add(nn.NewDropout(cfg.Dropouts[2]))
		m.Add(nn.NewLSTM(cfg.LSTMOutputSize, nn.WithStatefulness()))
	} else {
		m.Add(nn.NewLSTM(cfg.LSTMOutputSize))
	}
	m.Add(nn.NewDense(cfg.NbClass, "softmax"))

	if err := m.Compile(cfg.Loss, cfg.Optimizer); err != nil {
		return nil, err
	}
	return m, nil
}
