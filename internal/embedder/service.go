package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/engramlabs/engram/internal/chunker"
)

const (
	// DefaultBatchConcurrency is the number of texts embedded in
	// parallel per batch group.
	DefaultBatchConcurrency = 4

	// DefaultBatchDelay spaces batch groups apart to stay under
	// provider rate limits.
	DefaultBatchDelay = 100 * time.Millisecond

	// DefaultValidateTimeout bounds a provider warmup or probe call.
	DefaultValidateTimeout = 5 * time.Second
)

// Service is the embedding entry point. It resolves the provider chain
// lazily, walks it per request skipping unhealthy candidates, retries
// transient failures, caches results, and chunks over-length input.
type Service struct {
	cfg    Config
	logger zerolog.Logger

	cache   *Cache
	monitor *HealthMonitor
	chunks  *chunker.Chunker

	initGroup singleflight.Group

	mu           sync.RWMutex
	chain        []Candidate
	providers    map[string]Provider
	primary      Provider
	cacheProfile Profile
}

// NewService wires a Service from config. Chain resolution happens on
// the first embedding call, not here, so construction is cheap and
// never touches the network.
func NewService(cfg Config, logger zerolog.Logger) *Service {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultBatchDelay
	} else if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = DefaultValidateTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Health.WindowSize == 0 {
		cfg.Health = DefaultHealthConfig()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger.With().Str("component", "embedder").Logger(),
		cache:     NewCache(cfg.CacheSize),
		monitor:   NewHealthMonitor(cfg.Health),
		chunks:    chunker.New(cfg.MaxChunkTokens),
		providers: make(map[string]Provider),
	}
}

// Embed generates a vector for a single text along with the profile
// that produced it. Over-length input is chunked and the chunk vectors
// mean-pooled into one.
func (s *Service) Embed(ctx context.Context, text string, task Task) ([]float32, Profile, error) {
	if strings.TrimSpace(text) == "" {
		return nil, Profile{}, ErrEmptyText
	}
	if err := s.init(ctx); err != nil {
		return nil, Profile{}, err
	}

	if vec, ok := s.cache.Get(task, text); ok {
		s.mu.RLock()
		prof := s.cacheProfile
		s.mu.RUnlock()
		return vec, prof, nil
	}

	var out []float32
	prof, err := s.walk(ctx, func(wctx context.Context, p Provider) error {
		vec, err := s.embedOne(wctx, p, text, task)
		if err != nil {
			return err
		}
		out = vec
		return nil
	})
	if err != nil {
		return nil, Profile{}, err
	}

	s.store(task, []string{text}, [][]float32{out}, prof)
	return out, prof, nil
}

// EmbedBatch embeds texts preserving input order. Texts are processed
// in groups of the configured concurrency with a delay between groups
// to respect provider rate limits. The whole batch is served by one
// provider, so every vector shares a profile.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, task Task) ([][]float32, Profile, error) {
	if len(texts) == 0 {
		return nil, Profile{}, fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, Profile{}, fmt.Errorf("%w: text at index %d is empty", ErrEmptyText, i)
		}
	}
	if err := s.init(ctx); err != nil {
		return nil, Profile{}, err
	}

	var out [][]float32
	prof, err := s.walk(ctx, func(wctx context.Context, p Provider) error {
		vecs, err := s.embedGroups(wctx, p, texts, task)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, Profile{}, err
	}

	s.store(task, texts, out, prof)
	return out, prof, nil
}

// ActiveProfile reports the profile of the warmed primary provider,
// triggering chain resolution if it has not happened yet.
func (s *Service) ActiveProfile(ctx context.Context) (Profile, error) {
	if err := s.init(ctx); err != nil {
		return Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary.Profile(), nil
}

// ProbeRecovery re-validates every provider the monitor has flagged
// unhealthy. A candidate that passes gets a fresh health window, so one
// good probe restores it to the pool instead of waiting for the window
// to churn through old failures.
func (s *Service) ProbeRecovery(ctx context.Context) (probed, recovered int) {
	s.mu.RLock()
	chain := make([]Candidate, len(s.chain))
	copy(chain, s.chain)
	s.mu.RUnlock()

	for _, cand := range chain {
		if !s.monitor.ShouldFallback(cand.Name) {
			continue
		}
		probed++

		p, err := s.providerFor(ctx, cand.Name)
		if err != nil {
			s.logger.Debug().Err(err).Str("provider", cand.Name).Msg("recovery probe could not construct provider")
			continue
		}

		vctx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout)
		start := time.Now()
		err = p.Validate(vctx)
		cancel()
		if err != nil {
			s.monitor.RecordOutcome(cand.Name, false, time.Since(start))
			s.logger.Debug().Err(err).Str("provider", cand.Name).Msg("recovery probe failed")
			continue
		}

		s.monitor.Reset(cand.Name)
		s.monitor.RecordOutcome(cand.Name, true, time.Since(start))
		recovered++
		s.logger.Info().Str("provider", cand.Name).Msg("provider recovered")
	}
	return probed, recovered
}

// Health snapshots every tracked provider's health window.
func (s *Service) Health() map[string]HealthSnapshot {
	return s.monitor.Snapshot()
}

// CacheStats reports embedding cache effectiveness.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Close releases every constructed provider client.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, p := range s.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	s.providers = make(map[string]Provider)
	s.primary = nil
	return firstErr
}

// init resolves and warms the provider chain on first use. Concurrent
// callers share the in-flight resolution; a failed resolution is
// retried by the next caller rather than latched.
func (s *Service) init(ctx context.Context) error {
	s.mu.RLock()
	ready := s.primary != nil
	s.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := s.initGroup.Do("init", func() (interface{}, error) {
		s.mu.RLock()
		ready := s.primary != nil
		s.mu.RUnlock()
		if ready {
			return nil, nil
		}
		return nil, s.resolve(ctx)
	})
	return err
}

// resolve walks the candidate chain and promotes the first provider
// that constructs and passes warmup validation. With no forced
// provider the offline candidate guarantees the walk ends in success;
// a forced provider that fails warmup surfaces its error instead.
func (s *Service) resolve(ctx context.Context) error {
	chain := ResolveChain(s.cfg)
	s.mu.Lock()
	s.chain = chain
	s.mu.Unlock()

	exhausted := &ExhaustionError{}
	for _, cand := range chain {
		p, err := s.providerFor(ctx, cand.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", cand.Name).Msg("provider unavailable")
			exhausted.record(cand.Name, fmt.Sprintf("%s: %v", cand.Name, err))
			continue
		}

		vctx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout)
		start := time.Now()
		err = p.Validate(vctx)
		cancel()
		s.monitor.RecordOutcome(cand.Name, err == nil, time.Since(start))
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", cand.Name).Msg("warmup failed, falling back")
			exhausted.record(cand.Name, fmt.Sprintf("%s: %v", cand.Name, err))
			continue
		}

		s.mu.Lock()
		s.primary = p
		s.mu.Unlock()
		s.logger.Info().
			Str("provider", cand.Name).
			Str("model", p.Model()).
			Int("dimension", p.Dimension()).
			Str("reason", cand.Reason).
			Msg("embedding provider ready")
		return nil
	}

	return exhausted
}

// providerFor returns the memoized provider for a candidate,
// constructing it on first use. The model override applies only to the
// chain primary; fallbacks run their default models.
func (s *Service) providerFor(ctx context.Context, name string) (Provider, error) {
	s.mu.RLock()
	p := s.providers[name]
	primaryName := ""
	if len(s.chain) > 0 {
		primaryName = s.chain[0].Name
	}
	s.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	model := ""
	if name == primaryName {
		model = s.cfg.modelOverride()
	}
	p, err := New(ctx, name, model, s.cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.providers[name]; existing != nil {
		_ = p.Close()
		return existing, nil
	}
	s.providers[name] = p
	return p, nil
}

// walk tries each chain candidate in order until fn succeeds, skipping
// providers the health monitor marks for fallback. The serving
// provider's profile is returned with the result.
func (s *Service) walk(ctx context.Context, fn func(context.Context, Provider) error) (Profile, error) {
	s.mu.RLock()
	chain := make([]Candidate, len(s.chain))
	copy(chain, s.chain)
	s.mu.RUnlock()

	exhausted := &ExhaustionError{}
	for _, cand := range chain {
		if s.monitor.ShouldFallback(cand.Name) {
			s.logger.Debug().
				Str("provider", cand.Name).
				Float64("score", s.monitor.Score(cand.Name)).
				Msg("skipping unhealthy provider")
			exhausted.record(cand.Name, cand.Name+": unhealthy, skipped")
			continue
		}

		p, err := s.providerFor(ctx, cand.Name)
		if err != nil {
			exhausted.record(cand.Name, fmt.Sprintf("%s: %v", cand.Name, err))
			continue
		}

		if err := fn(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("provider", cand.Name).Msg("provider failed, advancing to next candidate")
			exhausted.record(cand.Name, fmt.Sprintf("%s: %v", cand.Name, err))
			continue
		}
		return p.Profile(), nil
	}

	return Profile{}, exhausted
}

// embedOne embeds one logical text through p, chunking and pooling
// when it exceeds the token budget.
func (s *Service) embedOne(ctx context.Context, p Provider, text string, task Task) ([]float32, error) {
	if s.chunks.Fits(text) {
		vecs, err := s.attempt(ctx, p, []string{text}, task)
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}

	parts := s.chunks.Chunk(text)
	s.logger.Debug().Int("chunks", len(parts)).Str("provider", p.Name()).Msg("chunking over-length text")

	vectors := make([][]float32, 0, len(parts))
	for start := 0; start < len(parts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(parts))
		texts := make([]string, 0, end-start)
		for _, part := range parts[start:end] {
			texts = append(texts, part.Content)
		}
		vecs, err := s.attempt(ctx, p, texts, task)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return NormalizeVector(meanPool(vectors)), nil
}

// embedGroups embeds texts in concurrency-sized groups, pausing
// between groups. Results land by index, so order is preserved
// regardless of completion order.
func (s *Service) embedGroups(ctx context.Context, p Provider, texts []string, task Task) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchConcurrency {
		end := min(start+s.cfg.BatchConcurrency, len(texts))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := s.embedOne(gctx, p, texts[i], task)
				if err != nil {
					return err
				}
				out[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(texts) && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}
	return out, nil
}

// attempt is one provider call through the retry controller, recording
// every try's outcome in the health window.
func (s *Service) attempt(ctx context.Context, p Provider, texts []string, task Task) ([][]float32, error) {
	return retryWithBackoff(ctx, s.cfg.Retry, func(actx context.Context) ([][]float32, error) {
		start := time.Now()
		vecs, err := p.Embed(actx, texts, task)
		s.monitor.RecordOutcome(p.Name(), err == nil, time.Since(start))
		return vecs, err
	})
}

// store caches fresh vectors. A profile switch flushes the cache
// first: entries are only comparable within the profile that produced
// them.
func (s *Service) store(task Task, texts []string, vecs [][]float32, prof Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheProfile != prof {
		if !s.cacheProfile.IsZero() {
			s.logger.Info().
				Str("from", s.cacheProfile.String()).
				Str("to", prof.String()).
				Msg("embedding profile changed, flushing cache")
		}
		s.cache.Clear()
		s.cacheProfile = prof
	}
	for i, text := range texts {
		s.cache.Put(task, text, vecs[i])
	}
}

// meanPool averages chunk vectors componentwise.
func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	pooled := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i, v := range vec {
			pooled[i] += v
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled
}
