package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/samcharles93/cnnlstm/internal/config"
	"github.com/samcharles93/cnnlstm/internal/dataset"
	"github.com/samcharles93/cnnlstm/internal/logger"
	"github.com/samcharles93/cnnlstm/internal/models"
	"github.com/samcharles93/cnnlstm/internal/nn"
	"github.com/samcharles93/cnnlstm/internal/safetensors"
	"github.com/samcharles93/cnnlstm/internal/sequence"
	"github.com/samcharles93/cnnlstm/internal/tokenizer"
	"github.com/samcharles93/cnnlstm/internal/train"
)

// buildModel constructs and compiles the topology cfg.Model names.
func buildModel(cfg config.Config, log logger.Logger) (*nn.Sequential, error) {
	if cfg.Model != config.ModelCNNLSTM {
		if cfg.Data.EmbeddingPath != "" {
			log.Warn("pretrained embedding ignored by the baseline model", "path", cfg.Data.EmbeddingPath)
		}
		return models.ConstructPreModel(cfg.Baseline)
	}

	mc := cfg.CNNLSTM
	if cfg.Data.EmbeddingPath != "" {
		w, err := safetensors.LoadMatrix(cfg.Data.EmbeddingPath, cfg.Data.EmbeddingTensor)
		if err != nil {
			return nil, fmt.Errorf("load embedding: %w", err)
		}
		log.Info("pretrained embedding", "path", cfg.Data.EmbeddingPath, "rows", w.R, "cols", w.C)
		mc.PretrainedEmbedding = nn.StaticWeights{w}
	}
	return models.ConstructCNNLSTM(mc)
}

// loadSplit reads or generates the samples and encodes labels for the
// selected model: one sigmoid target for the baseline, one-hot otherwise.
func loadSplit(cfg config.Config, log logger.Logger) (train.Split, error) {
	var trainSet, testSet dataset.Samples
	switch {
	case cfg.Data.TrainPath == "":
		all := dataset.Synthetic(cfg.Data.Synthetic)
		trainSet, testSet = all.Split(cfg.Data.TestFraction)
		log.Info("synthetic dataset", "samples", all.Len(), "classes", cfg.Data.Synthetic.Classes)
	case cfg.Data.TestPath == "":
		all, err := dataset.LoadJSONL(cfg.Data.TrainPath)
		if err != nil {
			return train.Split{}, err
		}
		trainSet, testSet = all.Split(cfg.Data.TestFraction)
	default:
		var err error
		if trainSet, err = dataset.LoadJSONL(cfg.Data.TrainPath); err != nil {
			return train.Split{}, err
		}
		if testSet, err = dataset.LoadJSONL(cfg.Data.TestPath); err != nil {
			return train.Split{}, err
		}
	}

	if trainSet.Len() == 0 {
		return train.Split{}, fmt.Errorf("train split: %w", dataset.ErrEmpty)
	}
	if testSet.Len() == 0 {
		return train.Split{}, fmt.Errorf("test split: %w (raise data.test_fraction or set data.test)", dataset.ErrEmpty)
	}

	if trainSet.NeedsTokenizing() || testSet.NeedsTokenizing() {
		vocab, err := loadVocab(cfg, trainSet.Texts, log)
		if err != nil {
			return train.Split{}, err
		}
		if err := trainSet.Tokenize(vocab); err != nil {
			return train.Split{}, fmt.Errorf("train data: %w", err)
		}
		if err := testSet.Tokenize(vocab); err != nil {
			return train.Split{}, fmt.Errorf("test data: %w", err)
		}
	}

	encode := func(labels []int) ([][]float32, error) {
		if cfg.Model == config.ModelCNNLSTM {
			return sequence.ToCategorical(labels, cfg.CNNLSTM.NbClass)
		}
		return sequence.ToBinary(labels), nil
	}
	yTrain, err := encode(trainSet.Labels)
	if err != nil {
		return train.Split{}, fmt.Errorf("train labels: %w", err)
	}
	yTest, err := encode(testSet.Labels)
	if err != nil {
		return train.Split{}, fmt.Errorf("test labels: %w", err)
	}
	return train.Split{
		XTrain: trainSet.Tokens,
		YTrain: yTrain,
		XTest:  testSet.Tokens,
		YTest:  yTest,
	}, nil
}

// loadVocab reads cfg.Data.Vocab when it exists. Otherwise it fits a new
// index on the training texts, capped at the model's vocabulary size, and
// saves it there when a path is configured.
func loadVocab(cfg config.Config, texts []string, log logger.Logger) (*tokenizer.Vocab, error) {
	if path := cfg.Data.Vocab; path != "" {
		v, err := tokenizer.LoadVocab(path)
		if err == nil {
			if saved := v.Options().NumWords; saved <= 0 || saved > cfg.MaxFeatures() {
				log.Warn("vocabulary cap exceeds model features, capping",
					"path", path, "num_words", saved, "max_features", cfg.MaxFeatures())
				v = v.Capped(cfg.MaxFeatures())
			}
			log.Info("vocabulary", "path", path, "words", v.Len(), "num_words", v.Options().NumWords)
			return v, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := tokenizer.Fit(texts, tokenizer.Options{
		NumWords: cfg.MaxFeatures(),
		OOVToken: cfg.Data.OOVToken,
	})
	log.Info("fitted vocabulary", "words", v.Len(), "num_words", cfg.MaxFeatures())
	if cfg.Data.Vocab != "" {
		if err := v.Save(cfg.Data.Vocab); err != nil {
			return nil, fmt.Errorf("save vocab: %w", err)
		}
	}
	return v, nil
}

// saveWeights writes every trainable matrix with the model kind recorded in
// the file metadata.
func saveWeights(path string, cfg config.Config, model *nn.Sequential) error {
	w, err := model.NamedWeights()
	if err != nil {
		return err
	}
	if err := safetensors.Write(path, w, map[string]string{"model": cfg.Model}); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// restoreWeights loads a file written by saveWeights into model.
func restoreWeights(path string, cfg config.Config, model *nn.Sequential, log logger.Logger) error {
	meta, err := safetensors.Metadata(path)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	if kind := meta["model"]; kind != "" && kind != cfg.Model {
		log.Warn("weights were saved from a different model", "saved", kind, "configured", cfg.Model)
	}
	w, err := safetensors.LoadMatrices(path)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	if err := model.SetWeights(w); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	return nil
}
