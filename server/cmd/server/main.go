package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visioncontrol/visioncontrol/server/internal/adapters/buildinfo"
	"github.com/visioncontrol/visioncontrol/server/internal/adapters/gitlab"
	"github.com/visioncontrol/visioncontrol/server/internal/adapters/prometheus"
	"github.com/visioncontrol/visioncontrol/server/internal/adapters/static"
	"github.com/visioncontrol/visioncontrol/server/internal/api"
	"github.com/visioncontrol/visioncontrol/server/internal/config"
	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	watch := flag.Bool("watch", true, "reload static variables and the log level when the config file changes")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("visioncontrol-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"log_level", cfg.Server.LogLevel,
		"gitlab", cfg.GitLab.Enabled(),
		"prometheus_sources", len(cfg.Prometheus.Sources),
		"static_variables", len(cfg.Static.Variables),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Registry: one adapter per scope.
	registry := datasource.NewRegistry()
	buildinfo.New(cfg.Server.Revision).Register(registry)
	prometheus.New(cfg.Prometheus).Register(registry)
	if cfg.GitLab.Enabled() {
		gitlab.New(cfg.GitLab).Register(registry)
	}
	staticVars := static.New(cfg.Static)
	staticVars.Register(registry)

	if *watch {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				level.Set(next.Server.Level())
				staticVars.Update(next.Static)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.New(datasource.NewEngine(registry), cfg.Server.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("visioncontrol-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
