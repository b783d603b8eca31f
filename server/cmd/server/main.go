package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:   "followbell",
		Usage:  "new-follower feed for the streaming follower widget",
		Flags:  serveFlags(),
		Action: serve,
		Commands: []*cli.Command{
			serveCommand(),
			injectCommand(),
			initCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("followbell: exiting", "err", err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to config file",
		Value:   "config.yaml",
		Sources: cli.EnvVars("FOLLOWBELL_CONFIG"),
	}
}
