package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/followbell/followbell/server/internal/config"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "write a config file with the default settings",
		Action: initConfig,
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing file",
			},
		},
	}
}

func initConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("init: %s already exists (use --force to overwrite)", path)
	}

	data, err := config.DefaultYAML()
	if err != nil {
		return fmt.Errorf("init: render defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("init: write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", path)
	return nil
}
