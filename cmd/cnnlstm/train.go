package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cnnlstm/internal/config"
	"github.com/samcharles93/cnnlstm/internal/train"
)

func trainCmd() *cli.Command {
	var (
		epochs      int
		batchSize   int
		evaluate    bool
		trainData   string
		testData    string
		vocab       string
		embedding   string
		historyPath string
		savePath    string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "epochs",
			Aliases:     []string{"e"},
			Usage:       "number of training epochs",
			Destination: &epochs,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "samples per gradient update",
			Destination: &batchSize,
		},
		&cli.BoolFlag{
			Name:        "evaluate",
			Usage:       "score the model on the test split after fitting",
			Destination: &evaluate,
		},
		&cli.StringFlag{
			Name:        "train-data",
			Usage:       "JSONL file of {\"tokens\": [...] or \"text\": \"...\", \"label\": n} records",
			Destination: &trainData,
		},
		&cli.StringFlag{
			Name:        "test-data",
			Usage:       "JSONL test split (defaults to a holdout of --train-data)",
			Destination: &testData,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "word index for text records (fitted and saved here if missing)",
			Destination: &vocab,
		},
		&cli.StringFlag{
			Name:        "embedding",
			Usage:       "safetensors file seeding the cnn_lstm embedding",
			Destination: &embedding,
		},
		&cli.StringFlag{
			Name:        "save",
			Usage:       "write trained weights to a .safetensors file",
			Destination: &savePath,
		},
		&cli.StringFlag{
			Name:        "history",
			Usage:       "write the run result and per-epoch history as JSON",
			Destination: &historyPath,
		},
	}
	flags = slices.Concat(configFlags(), flags, loggingFlags())

	return &cli.Command{
		Name:  "train",
		Usage: "Build a model, fit it and optionally evaluate it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("epochs") {
				cfg.Training.Epochs = epochs
			}
			if c.IsSet("batch-size") {
				cfg.Training.BatchSize = batchSize
			}
			if c.IsSet("evaluate") {
				cfg.Training.Evaluate = evaluate
			}
			if c.IsSet("train-data") {
				cfg.Data.TrainPath = trainData
			}
			if c.IsSet("test-data") {
				cfg.Data.TestPath = testData
			}
			if c.IsSet("vocab") {
				cfg.Data.Vocab = vocab
			}
			if c.IsSet("embedding") {
				cfg.Data.EmbeddingPath = embedding
			}

			ctx, log := withLogger(ctx, cfg)
			if cfg.Training.MaxWordsInSentence != cfg.MaxWords() {
				log.Warn("padding length differs from the model input length",
					"padding", cfg.Training.MaxWordsInSentence, "model", cfg.MaxWords())
			}

			split, err := loadSplit(cfg, log)
			if err != nil {
				return err
			}
			model, err := buildModel(cfg, log)
			if err != nil {
				return err
			}
			log.Debug("model\n" + model.Summary())

			res, err := train.Run(ctx, model, split, cfg.Training)
			if historyPath != "" {
				if werr := writeResult(historyPath, cfg, res); werr != nil {
					log.Error("write history", "path", historyPath, "error", werr)
				}
			}
			if err != nil {
				return err
			}
			if savePath != "" {
				if err := saveWeights(savePath, cfg, model); err != nil {
					return err
				}
				log.Info("saved weights", "path", savePath)
			}
			printResult(res)
			return nil
		},
	}
}

type resultFile struct {
	Model    string        `json:"model"`
	Training train.Options `json:"training"`
	train.Result
}

func writeResult(path string, cfg config.Config, res train.Result) error {
	data, err := json.MarshalIndent(resultFile{Model: cfg.Model, Training: cfg.Training, Result: res}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printResult(res train.Result) {
	fmt.Printf("run:      %s\n", res.RunID)
	fmt.Printf("elapsed:  %s\n", res.Elapsed)
	if res.Score == nil {
		fmt.Println("score:    n/a")
		fmt.Println("accuracy: n/a")
		return
	}
	fmt.Printf("score:    %.4f\n", *res.Score)
	fmt.Printf("accuracy: %.4f\n", *res.Accuracy)
}
