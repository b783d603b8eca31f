package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/followbell/followbell/server/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := &cli.Command{
		Name:     "followbell",
		Writer:   &out,
		Commands: []*cli.Command{injectCommand(), initCommand()},
	}
	err := root.Run(context.Background(), append([]string{"followbell"}, args...))
	return out.String(), err
}

func TestInit_WritesLoadableDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "init", "--config", p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, p) {
		t.Errorf("output: got %q, want path", out)
	}
	cfg, err := config.Load(p)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if cfg.Server.HTTPPort != config.DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, config.DefaultHTTPPort)
	}

	if _, err := run(t, "init", "--config", p); err == nil {
		t.Error("second init without --force: want error")
	}
	if _, err := run(t, "init", "--config", p, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestInject(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/test-follower" {
			http.NotFound(w, r)
			return
		}
		calls++
		fmt.Fprint(w, `{"success":true,"message":"Test follower added to queue"}`)
	}))
	defer srv.Close()

	out, err := run(t, "inject", "--url", srv.URL+"/")
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if !strings.Contains(out, "Test follower added to queue") {
		t.Errorf("output: got %q", out)
	}
}

func TestInject_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := run(t, "inject", "--url", url); err == nil {
		t.Error("want error when the server is unreachable")
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("FOLLOWBELL_URL")
	os.Unsetenv("FOLLOWBELL_CONFIG")
	os.Exit(m.Run())
}
