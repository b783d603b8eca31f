package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/followbell/followbell/server/internal/alerts"
	"github.com/followbell/followbell/server/internal/api"
	"github.com/followbell/followbell/server/internal/auth"
	"github.com/followbell/followbell/server/internal/config"
	"github.com/followbell/followbell/server/internal/feed"
	"github.com/followbell/followbell/server/internal/health"
	"github.com/followbell/followbell/server/internal/kvstore"
	"github.com/followbell/followbell/server/internal/metrics"
	"github.com/followbell/followbell/server/internal/platform"
	"github.com/followbell/followbell/server/internal/portscan"
	"github.com/followbell/followbell/server/internal/session"
	"github.com/followbell/followbell/server/internal/settings"
	"github.com/followbell/followbell/server/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func serveFlags() []cli.Flag {
	return []cli.Flag{configFlag()}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the follower feed server (default)",
		Flags:  serveFlags(),
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	configPath := cmd.String("config")
	slog.Info("followbell starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"ttl", cfg.Feed.TTL,
		"db_path", cfg.Server.DBPath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persistent session and widget settings.
	db, err := kvstore.Open(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sess := session.New(db)
	if err := sess.Restore(ctx); err != nil {
		slog.Warn("failed to restore session, login required", "err", err)
	}

	client := platform.New(sess, platform.Options{
		ChzzkURL:      cfg.Platform.ChzzkURL,
		NaverGameURL:  cfg.Platform.NaverGameURL,
		Timeout:       cfg.Platform.Timeout,
		MinInterval:   cfg.Platform.MinPollInterval,
		RetryAttempts: cfg.Platform.RetryAttempts,
		PageSize:      cfg.Feed.PageSize,
	})

	alertEngine := alerts.New(cfg.Alerts)
	go alertEngine.Run(ctx)

	guard := auth.New(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())
	healthSvc := health.New(guard)

	agg := feed.New(client,
		feed.WithTTL(cfg.Feed.TTL),
		feed.WithPageSize(cfg.Feed.PageSize),
		feed.WithTestNickname(cfg.Feed.TestNickname),
		feed.WithObserver(metrics.Observer{}),
		feed.WithObserver(alertEngine),
		feed.WithObserver(healthSvc),
	)
	if err := metrics.RegisterEngine(agg.Stats); err != nil {
		return err
	}
	go agg.Run(ctx)

	hub := ws.New(agg, cfg.Feed.BroadcastInterval)
	agg.AddObserver(hub)
	go hub.Run(ctx)

	handler := api.New(api.Deps{
		Engine:    agg,
		Platform:  client,
		Session:   sess,
		Settings:  settings.New(db),
		Alerts:    alertEngine,
		WS:        hub,
		Guard:     guard,
		PagesDir:  cfg.Server.PagesDir,
		PublicDir: cfg.Server.PublicDir,
		PageSize:  cfg.Feed.PageSize,
		Dev:       cfg.Server.Dev,
	})

	if cfg.Server.GRPCPort > 0 {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", addr, err)
		}
		go func() {
			if err := healthSvc.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server stopped", "err", err)
			}
		}()
	}

	if _, err := os.Stat(configPath); err == nil {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				level.Set(c.Server.Level())
				client.SetMinInterval(c.Platform.MinPollInterval)
				alertEngine.Reconfigure(c.Alerts)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	lis, err := portscan.Listen(cfg.Server.Host, cfg.Server.HTTPPort, cfg.Server.PortScanRange)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening",
			"addr", lis.Addr().String(),
			"widget", fmt.Sprintf("http://localhost:%d/follower", portscan.Port(lis)),
		)
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("followbell shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return httpSrv.Shutdown(shutdownCtx)
}
