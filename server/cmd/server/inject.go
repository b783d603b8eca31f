package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/followbell/followbell/server/internal/api"
)

func injectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inject",
		Usage:  "add a test follower to a running server",
		Action: inject,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "base URL of the running server",
				Value:   "http://127.0.0.1:3000",
				Sources: cli.EnvVars("FOLLOWBELL_URL"),
			},
		},
	}
}

func inject(ctx context.Context, cmd *cli.Command) error {
	url := strings.TrimSuffix(cmd.String("url"), "/") + "/test-follower"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("inject: build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("inject: is the server running? %w", err)
	}
	defer resp.Body.Close()

	var out api.TestFollowerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("inject: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		return fmt.Errorf("inject: server refused: %s", out.Message)
	}
	fmt.Fprintln(cmd.Root().Writer, out.Message)
	return nil
}
