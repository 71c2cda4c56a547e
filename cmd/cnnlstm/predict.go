package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cnnlstm/internal/config"
	"github.com/samcharles93/cnnlstm/internal/dataset"
	"github.com/samcharles93/cnnlstm/internal/logits"
	"github.com/samcharles93/cnnlstm/internal/sequence"
	"github.com/samcharles93/cnnlstm/internal/tokenizer"
)

func predictCmd() *cli.Command {
	var (
		weights   string
		texts     []string
		input     string
		topK      int
		minP      float64
		batchSize int
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "safetensors file written by train --save",
			Required:    true,
			Destination: &weights,
		},
		&cli.StringSliceFlag{
			Name:        "text",
			Aliases:     []string{"t"},
			Usage:       "text to classify (repeatable, needs data.vocab)",
			Destination: &texts,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSONL file of records to classify",
			Destination: &input,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "classes to print per sample",
			Value:       3,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "min-p",
			Usage:       "hide classes below this fraction of the best probability",
			Destination: &minP,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "samples per forward pass",
			Value:       32,
			Destination: &batchSize,
		},
	}

	return &cli.Command{
		Name:  "predict",
		Usage: "Classify text or token records with trained weights",
		Flags: slices.Concat(configFlags(), flags, loggingFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx, log := withLogger(ctx, cfg)

			samples, err := predictSamples(cfg, texts, input)
			if err != nil {
				return err
			}
			model, err := buildModel(cfg, log)
			if err != nil {
				return err
			}
			if err := restoreWeights(weights, cfg, model, log); err != nil {
				return err
			}

			x := sequence.Pad(samples.Tokens, cfg.MaxWords(), sequence.PadOptions{})
			out, err := model.Predict(ctx, x, batchSize)
			if err != nil {
				return err
			}
			rank := logits.RankConfig{TopK: topK, MinP: float32(minP)}
			for i, row := range out {
				fmt.Println(formatPrediction(i, logits.Rank(row, rank)))
			}
			return nil
		},
	}
}

// predictSamples gathers --text values, or the --input file, and tokenises
// any raw text with the configured vocabulary.
func predictSamples(cfg config.Config, texts []string, input string) (dataset.Samples, error) {
	var s dataset.Samples
	switch {
	case len(texts) > 0:
		s = dataset.Samples{
			Tokens: make([][]int, len(texts)),
			Texts:  texts,
			Labels: make([]int, len(texts)),
		}
	case input != "":
		var err error
		if s, err = dataset.LoadJSONL(input); err != nil {
			return dataset.Samples{}, err
		}
	default:
		return dataset.Samples{}, errors.New("nothing to classify: pass --text or --input")
	}

	if s.NeedsTokenizing() {
		if cfg.Data.Vocab == "" {
			return dataset.Samples{}, errors.New("text input needs data.vocab (or --vocab during training)")
		}
		vocab, err := tokenizer.LoadVocab(cfg.Data.Vocab)
		if err != nil {
			return dataset.Samples{}, err
		}
		if err := s.Tokenize(vocab.Capped(cfg.MaxFeatures())); err != nil {
			return dataset.Samples{}, err
		}
	}
	return s, nil
}

func formatPrediction(i int, classes []logits.Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\t", i)
	for j, c := range classes {
		if j > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d:%.4f", c.Index, c.Prob)
	}
	return sb.String()
}
