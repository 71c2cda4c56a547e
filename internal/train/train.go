// Package train drives fitting and evaluation of a compiled classifier.
package train

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/cnnlstm/internal/logger"
	"github.com/samcharles93/cnnlstm/internal/nn"
	"github.com/samcharles93/cnnlstm/internal/sequence"
)

// Model is the part of a compiled model the driver needs. *nn.Sequential
// satisfies it.
type Model interface {
	Fit(ctx context.Context, x [][]int, y [][]float32, opts nn.FitOptions) (nn.History, error)
	Evaluate(ctx context.Context, x [][]int, y [][]float32, batchSize int) (float64, float64, error)
}

// Split holds train and test token sequences with their targets.
type Split struct {
	XTrain [][]int
	YTrain [][]float32
	XTest  [][]int
	YTest  [][]float32
}

// Options are the driver's scalar hyperparameters.
type Options struct {
	MaxWordsInSentence int  `yaml:"max_words_in_sentence" json:"max_words_in_sentence"`
	Epochs             int  `yaml:"epochs" json:"epochs"`
	BatchSize          int  `yaml:"batch_size" json:"batch_size"`
	Evaluate           bool `yaml:"evaluate" json:"evaluate"`
}

// DefaultOptions returns 100 words, 2 epochs, batch size 30 with evaluation.
func DefaultOptions() Options {
	return Options{
		MaxWordsInSentence: 100,
		Epochs:             2,
		BatchSize:          30,
		Evaluate:           true,
	}
}

// Result is the outcome of Run. Score and Accuracy are nil when evaluation
// was skipped.
type Result struct {
	RunID    string     `json:"run_id"`
	Score    *float64   `json:"score"`
	Accuracy *float64   `json:"accuracy"`
	History  nn.History `json:"history"`
	Elapsed  string     `json:"elapsed"`
}

// Run pads both splits to opts.MaxWordsInSentence, fits the model for
// opts.Epochs with the test split as validation data and, when
// opts.Evaluate is set, evaluates it on the test split. Errors from the
// model are returned wrapped but otherwise unchanged.
func Run(ctx context.Context, model Model, split Split, opts Options) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := logger.FromContext(ctx).With("run_id", res.RunID)
	start := time.Now()

	xTrain := sequence.Pad(split.XTrain, opts.MaxWordsInSentence, sequence.PadOptions{})
	xTest := sequence.Pad(split.XTest, opts.MaxWordsInSentence, sequence.PadOptions{})
	log.Info("training",
		"train_samples", len(xTrain),
		"test_samples", len(xTest),
		"epochs", opts.Epochs,
		"batch_size", opts.BatchSize,
		"max_words", opts.MaxWordsInSentence)

	ctx = logger.WithContext(ctx, log)
	hist, err := model.Fit(ctx, xTrain, split.YTrain, nn.FitOptions{
		BatchSize:   opts.BatchSize,
		Epochs:      opts.Epochs,
		ValidationX: xTest,
		ValidationY: split.YTest,
	})
	res.History = hist
	if err != nil {
		return res, fmt.Errorf("train: %w", err)
	}

	if opts.Evaluate {
		score, acc, err := model.Evaluate(ctx, xTest, split.YTest, opts.BatchSize)
		if err != nil {
			return res, fmt.Errorf("train: evaluate: %w", err)
		}
		res.Score = &score
		res.Accuracy = &acc
		log.Info("evaluated", "score", score, "accuracy", acc)
	}
	res.Elapsed = time.Since(start).Round(time.Millisecond).String()
	return res, nil
}
