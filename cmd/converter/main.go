package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/config"
	"github.com/Aghostraa/OLI-Converters/internal/explorer"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/normalizer"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
	"github.com/Aghostraa/OLI-Converters/internal/sink"
	"github.com/Aghostraa/OLI-Converters/internal/source"
	"github.com/Aghostraa/OLI-Converters/internal/tracing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	logger.Info("starting oli-converter",
		"input", cfg.Input.CSVPath,
		"output", cfg.Output.Path,
		"fetch_workers", cfg.Pipeline.FetchWorkers,
		"max_rows", cfg.Pipeline.MaxRows,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "oli-converter", cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	reg := registry.Default()
	if cfg.Input.RegistryFile != "" {
		reg, err = registry.LoadFile(cfg.Input.RegistryFile)
		if err != nil {
			logger.Error("failed to load registry file", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("network registry loaded", "networks", reg.Len())

	rows, err := source.ReadRows(cfg.Input.CSVPath, logger)
	if err != nil {
		logger.Error("failed to read input", "error", err)
		os.Exit(1)
	}

	client := explorer.NewClient(explorer.Config{
		Timeout:          cfg.Explorer.Timeout,
		RateLimitRPS:     cfg.Explorer.RateLimitRPS,
		RateLimitBurst:   cfg.Explorer.RateLimitBurst,
		BreakerThreshold: cfg.Explorer.BreakerThreshold,
		BreakerTimeout:   cfg.Explorer.BreakerTimeout,
		CacheSize:        cfg.Explorer.CacheSize,
		CacheTTL:         cfg.Explorer.CacheTTL,
	}, logger)

	p, err := pipeline.New(pipeline.Config{
		FetchWorkers:      cfg.Pipeline.FetchWorkers,
		NormalizerWorkers: cfg.Pipeline.NormalizerWorkers,
		ChannelBufferSize: cfg.Pipeline.ChannelBufferSize,
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		BackoffInitial:    time.Duration(cfg.Pipeline.BackoffInitialMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.Pipeline.BackoffMaxMs) * time.Millisecond,
		TaskTimeout:       cfg.Pipeline.TaskTimeout,
		MaxRows:           cfg.Pipeline.MaxRows,
	}, reg, client, normalizer.DefaultBlockscout(), nil, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, finishing in-flight rows", "signal", sig.String())
		cancel()
	}()

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go func() {
		if err := runHealthServer(healthCtx, cfg.Server.HealthPort, logger); err != nil {
			logger.Warn("health server error", "error", err)
		}
	}()

	result := p.Run(ctx, rows)

	if err := sink.Write(cfg.Output.Path, runID, result); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}

	logger.Info("output written",
		"path", cfg.Output.Path,
		"records", len(result.Records),
		"failures", len(result.Failures),
		"elapsed", result.Stats.ElapsedTime,
	)
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
