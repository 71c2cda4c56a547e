package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"
)

func summaryCmd() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Print the layer table of the configured model",
		Flags: slices.Concat(configFlags(), loggingFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			_, log := withLogger(ctx, cfg)
			model, err := buildModel(cfg, log)
			if err != nil {
				return err
			}
			fmt.Println(model.Summary())
			return nil
		},
	}
}
