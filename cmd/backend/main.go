package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	configloader "github.com/marmolab/zvukozap/external/config"
	ffmpegimpl "github.com/marmolab/zvukozap/external/ffmpeg"
	openaiimpl "github.com/marmolab/zvukozap/external/openai"
	repositoryimpl "github.com/marmolab/zvukozap/external/repository"
	webhookimpl "github.com/marmolab/zvukozap/external/webhook"
	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/diarize"
	"github.com/marmolab/zvukozap/internal/fragment"
	"github.com/marmolab/zvukozap/internal/orchestrate"
	"github.com/marmolab/zvukozap/internal/pipeline"
	"github.com/marmolab/zvukozap/internal/segment"
	"github.com/samber/do/v2"
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching pipeline worker")
	runWorker(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	ffmpegimpl.RegisterDI(injector)
	openaiimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	fragment.RegisterDI(injector)
	segment.RegisterDI(injector)
	orchestrate.RegisterDI(injector)
	diarize.RegisterDI(injector)
	pipeline.RegisterDI(injector)

	return injector
}

func runWorker(injector do.Injector) {
	worker, err := do.Invoke[*pipeline.Worker](injector)
	if err != nil {
		slog.Error("failed to resolve pipeline worker", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("pipeline worker failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
		cancel()
		<-done
	case <-done:
	}
}
