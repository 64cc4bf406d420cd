package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embedder"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/maintenance"
	"github.com/engramlabs/engram/internal/mcp"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("Engram MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engram: %v\n", err)
		os.Exit(1)
	}

	// Log to stderr only: stdout is reserved for the MCP protocol.
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engram: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("driver", storage.DriverName).
		Bool("vector_extension", storage.VectorExtensionAvailable).
		Msg("engram starting")

	dbPath := cfg.Storage.Path
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	embed := embedder.NewService(embedderConfig(cfg), logger)
	defer func() { _ = embed.Close() }()

	engine := memory.NewEngine(store, embed, memory.Config{
		SimilarWarnThreshold: cfg.Search.SimilarWarnThreshold,
		DefaultLimit:         cfg.Search.DefaultLimit,
	}, logger)

	jobs := maintenance.NewService(engine, maintenance.Config{
		ProbeSchedule: cfg.Maintenance.ProbeSchedule,
		SweepSchedule: cfg.Maintenance.SweepSchedule,
	}, logger)
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer jobs.Stop()

	server := mcp.NewServer(engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

// embedderConfig maps the loaded configuration onto the embedding
// service's knobs.
func embedderConfig(cfg config.Config) embedder.Config {
	return embedder.Config{
		Provider:         cfg.Embedding.Provider,
		Model:            cfg.Embedding.Model,
		GeminiAPIKey:     cfg.Embedding.GeminiAPIKey,
		OpenAIAPIKey:     cfg.Embedding.OpenAIAPIKey,
		OllamaHost:       cfg.Embedding.OllamaHost,
		CacheSize:        cfg.Embedding.CacheSize,
		BatchDelay:       cfg.Embedding.BatchDelay,
		BatchConcurrency: cfg.Embedding.BatchConcurrency,
		MaxChunkTokens:   cfg.Embedding.MaxChunkTokens,
		ValidateTimeout:  cfg.Retry.ValidateTimeout,
		Retry: embedder.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BaseDelay:      cfg.Retry.BaseDelay,
			MaxDelay:       cfg.Retry.MaxDelay,
			Multiplier:     cfg.Retry.Multiplier,
			Jitter:         cfg.Retry.Jitter,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
		},
		Health: embedder.HealthConfig{
			WindowSize:     cfg.Health.WindowSize,
			UnhealthyBelow: cfg.Health.UnhealthyBelow,
			HealthyAbove:   cfg.Health.HealthyAbove,
		},
	}
}
