package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cnnlstm/internal/config"
	"github.com/samcharles93/cnnlstm/internal/logger"
)

var (
	configPath string
	envFile    string
	modelKind  string
	maxWords   int
	logLevel   string
	logFormat  string
	debug      bool
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to experiment YAML",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Usage:       "dotenv file with CNNLSTM_* overrides",
			Value:       ".env",
			Destination: &envFile,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "topology to build (baseline, cnn_lstm)",
			Destination: &modelKind,
		},
		&cli.IntFlag{
			Name:        "max-words",
			Usage:       "sequence length for both the model input and padding",
			Destination: &maxWords,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// loadConfig resolves settings from defaults, the YAML file, the dotenv file,
// the environment and finally explicitly set flags, in that order.
func loadConfig(c *cli.Command) (config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	applySharedFlags(c, &cfg)
	return cfg, cfg.Validate()
}

func applySharedFlags(c *cli.Command, cfg *config.Config) {
	if c.IsSet("model") {
		cfg.Model = modelKind
	}
	if c.IsSet("max-words") {
		cfg.SetMaxWords(maxWords)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = logLevel
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = logFormat
	}
	if debug {
		cfg.Log.Level = "debug"
	}
}

func withLogger(ctx context.Context, cfg config.Config) (context.Context, logger.Logger) {
	log := logger.ForFormat(os.Stderr, cfg.Log.Format, logger.ParseLevel(cfg.Log.Level))
	return logger.WithContext(ctx, log), log
}
