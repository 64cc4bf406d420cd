// Command engram-probe exercises the embedding stack outside the MCP
// server: it prints the provider fallback chain, validates each
// candidate, runs a sample embedding through the active service, and
// optionally backfills vectors for memories saved during outages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embedder"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/storage"
)

func main() {
	text := flag.String("text", "Engram keeps what the session should not forget.", "sample text to embed")
	reindex := flag.Bool("reindex", false, "re-embed memories missing a vector in the active space")
	concurrency := flag.Int("concurrency", memory.DefaultReindexConcurrency, "reindex worker count")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	ctx := context.Background()
	ecfg := embedderConfig(cfg)

	fmt.Println("Engram provider diagnostics")

	chain := embedder.ResolveChain(ecfg)
	fmt.Printf("\nFallback chain (%d candidates):\n", len(chain))
	for i, cand := range chain {
		fmt.Printf("  %d. %-8s %s\n", i+1, cand.Name, cand.Reason)
	}

	fmt.Println("\nValidating candidates:")
	for i, cand := range chain {
		validateCandidate(ctx, cand, i == 0, ecfg)
	}

	fmt.Println("\nResolving active service:")
	svc := embedder.NewService(ecfg, logger)
	defer func() { _ = svc.Close() }()

	profile, err := svc.ActiveProfile(ctx)
	if err != nil {
		log.Fatalf("No provider available: %v", err)
	}
	fmt.Printf("  ✓ active profile: %s\n", profile)

	start := time.Now()
	vec, served, err := svc.Embed(ctx, *text, embedder.TaskDocument)
	if err != nil {
		log.Fatalf("Embedding failed: %v", err)
	}
	fmt.Printf("  ✓ embedded %d chars into %d dims in %v (%s)\n",
		len(*text), len(vec), time.Since(start).Round(time.Millisecond), served)

	start = time.Now()
	if _, _, err = svc.Embed(ctx, *text, embedder.TaskDocument); err != nil {
		log.Fatalf("Cached embedding failed: %v", err)
	}
	fmt.Printf("  ✓ cached lookup in %v\n", time.Since(start).Round(time.Microsecond))

	stats := svc.CacheStats()
	fmt.Printf("\nCache: size=%d capacity=%d hits=%d misses=%d evictions=%d\n",
		stats.Size, stats.Capacity, stats.Hits, stats.Misses, stats.Evictions)

	fmt.Println("Provider health:")
	for name, snap := range svc.Health() {
		fmt.Printf("  %-8s %-9s score=%.2f success=%.2f avg_latency=%.0fms\n",
			name, snap.Status, snap.Score, snap.SuccessRate, snap.AvgLatencyMs)
	}

	if *reindex {
		runReindex(ctx, cfg, svc, logger, *concurrency)
	}
}

// validateCandidate constructs one provider and runs its minimal
// validation round trip. Only the primary candidate gets the
// configured model override; fallbacks run their defaults.
func validateCandidate(ctx context.Context, cand embedder.Candidate, primary bool, ecfg embedder.Config) {
	model := ""
	if primary {
		model = ecfg.Model
	}

	p, err := embedder.New(ctx, cand.Name, model, ecfg)
	if err != nil {
		fmt.Printf("  ✗ %-8s unavailable: %v\n", cand.Name, err)
		return
	}
	defer func() { _ = p.Close() }()

	vctx, cancel := context.WithTimeout(ctx, ecfg.ValidateTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Validate(vctx); err != nil {
		fmt.Printf("  ✗ %-8s validation failed: %v\n", cand.Name, err)
		return
	}
	fmt.Printf("  ✓ %-8s %s in %v\n", cand.Name, p.Profile(), time.Since(start).Round(time.Millisecond))
}

// runReindex backfills vectors for memories saved while providers were
// down, writing into the active profile's vector space.
func runReindex(ctx context.Context, cfg config.Config, svc *embedder.Service, logger zerolog.Logger, concurrency int) {
	fmt.Println("\nReindexing memories without vectors:")

	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage at %s: %v", cfg.Storage.Path, err)
	}
	defer func() { _ = store.Close() }()

	engine := memory.NewEngine(store, svc, memory.Config{
		SimilarWarnThreshold: cfg.Search.SimilarWarnThreshold,
		DefaultLimit:         cfg.Search.DefaultLimit,
	}, logger)

	embedded, err := engine.Reindex(ctx, concurrency)
	if err != nil {
		log.Fatalf("Reindex failed after %d embeddings: %v", embedded, err)
	}
	fmt.Printf("  ✓ embedded %d memories\n", embedded)
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
