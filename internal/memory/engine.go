package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/engramlabs/engram/internal/embedder"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

const (
	// DefaultScope is where memories land when the caller names none.
	DefaultScope = "global"

	// DefaultSearchLimit caps a search when the caller names no limit.
	DefaultSearchLimit = 10

	// DefaultSimilarWarnThreshold is the cosine similarity at which a
	// save warns about near-duplicate content.
	DefaultSimilarWarnThreshold = 0.95

	// DefaultReindexConcurrency bounds parallel reindex batches.
	DefaultReindexConcurrency = 4

	// candidateMultiplier widens each retrieval path beyond the
	// requested limit so rank fusion has enough overlap to work with.
	candidateMultiplier = 3

	// nearDupProbeLimit caps how many neighbors a save inspects.
	nearDupProbeLimit = 5

	// reindexBatchSize is how many memories one reindex batch embeds.
	reindexBatchSize = 50

	// previewRunes bounds content previews in similarity warnings.
	previewRunes = 80
)

var (
	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidVerdict is returned for a validation verdict other
	// than "useful" or "outdated".
	ErrInvalidVerdict = errors.New("invalid verdict")
)

// Verdict is a caller's judgement on a previously surfaced memory.
type Verdict string

const (
	VerdictUseful   Verdict = "useful"
	VerdictOutdated Verdict = "outdated"
)

// ParseVerdict normalizes and validates a verdict string.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictUseful, VerdictOutdated:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidVerdict, s, VerdictUseful, VerdictOutdated)
	}
}

// Embedder is the slice of the embedding service the engine depends
// on. *embedder.Service satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string, task embedder.Task) ([]float32, embedder.Profile, error)
	EmbedBatch(ctx context.Context, texts []string, task embedder.Task) ([][]float32, embedder.Profile, error)
	ActiveProfile(ctx context.Context) (embedder.Profile, error)
	ProbeRecovery(ctx context.Context) (probed, recovered int)
	Health() map[string]embedder.HealthSnapshot
	CacheStats() embedder.CacheStats
}

// Config tunes the ranking engine.
type Config struct {
	// SimilarWarnThreshold is the cosine similarity above which a
	// save reports near-duplicate content. Defaults to 0.95.
	SimilarWarnThreshold float64

	// DefaultLimit is the search result cap applied when a request
	// names none. Defaults to 10.
	DefaultLimit int
}

// Engine ranks, stores, and ages memories. Each Engine instance owns
// one session: memories it touches are bound to its session ID, and
// its turn counter drives per-turn relevance decay. Methods are safe
// for concurrent use.
type Engine struct {
	store  storage.Storage
	embed  Embedder
	cfg    Config
	logger zerolog.Logger

	sessionID string
	turn      atomic.Int64
}

// NewEngine builds an engine around a storage backend and an embedding
// service, starting a fresh session.
func NewEngine(store storage.Storage, embed Embedder, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.SimilarWarnThreshold <= 0 {
		cfg.SimilarWarnThreshold = DefaultSimilarWarnThreshold
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultSearchLimit
	}
	e := &Engine{
		store:     store,
		embed:     embed,
		cfg:       cfg,
		sessionID: uuid.NewString(),
	}
	e.logger = logger.With().Str("component", "memory").Str("session", e.sessionID).Logger()
	return e
}

// SessionID returns the session this engine binds touched memories to.
func (e *Engine) SessionID() string { return e.sessionID }

// Turn returns the current interaction turn.
func (e *Engine) Turn() int64 { return e.turn.Load() }

func (e *Engine) nextTurn() int64 { return e.turn.Add(1) }

// SaveRequest describes one memory to store.
type SaveRequest struct {
	Content string
	Tier    types.Tier // empty means normal
	Scope   string     // empty means DefaultScope
	// BaseScore overrides the tier's default starting score when
	// non-zero. Must stay within (0, 1].
	BaseScore float64
}

// SimilarWarning flags stored content that is nearly identical to the
// content just saved. It is advisory; the save still happens.
type SimilarWarning struct {
	ID         int64
	UID        string
	Similarity float64
	Preview    string
}

// SaveResult reports what a save did.
type SaveResult struct {
	Memory *types.MemoryItem

	// Deduplicated is true when identical content already existed in
	// the scope; Memory is then the refreshed existing item.
	Deduplicated bool

	// Degraded is true when no provider could embed the content and
	// the item was stored without a vector. A later reindex backfills.
	Degraded       bool
	DegradedReason string

	// Similar lists near-duplicate memories already in the scope.
	Similar []SimilarWarning

	// VectorSpace names the embedding space the vector landed in,
	// empty for deduplicated or degraded saves.
	VectorSpace string
}

// Save stores one memory. Identical content in the same scope is not
// inserted twice: the existing item is promoted to hot and returned
// with Deduplicated set. New content is embedded as a document,
// checked for near-duplicates, and written together with its vector
// in one transaction. When every provider is down the item is stored
// without a vector and the result is flagged degraded; keyword search
// still finds it.
func (e *Engine) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, types.ErrEmptyContent
	}

	tier := req.Tier
	if tier == "" {
		tier = types.TierNormal
	}
	if err := tier.Validate(); err != nil {
		return nil, err
	}

	baseScore := req.BaseScore
	if baseScore == 0 {
		baseScore = tier.DefaultBaseScore()
	}
	if baseScore <= 0 || baseScore > 1 {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidBaseScore, baseScore)
	}

	scope := req.Scope
	if scope == "" {
		scope = DefaultScope
	}

	turn := e.nextTurn()
	fingerprint := types.FingerprintContent(content)

	existing, err := e.store.GetMemoryByFingerprint(ctx, scope, fingerprint)
	switch {
	case err == nil:
		return e.refreshDuplicate(ctx, existing, turn)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("check fingerprint: %w", err)
	}

	now := time.Now().UTC()
	item := &types.MemoryItem{
		UID:            uuid.NewString(),
		Content:        content,
		Fingerprint:    fingerprint,
		Scope:          scope,
		Tier:           tier,
		BaseScore:      baseScore,
		State:          types.StateHot,
		SessionID:      e.sessionID,
		LastAccessTurn: turn,
		LastAccessAt:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	vector, profile, err := e.embed.Embed(ctx, content, embedder.TaskDocument)
	if err != nil {
		if errors.Is(err, embedder.ErrNoEmbedding) {
			return e.saveVectorless(ctx, item, turn, err)
		}
		return nil, fmt.Errorf("embed content: %w", err)
	}

	space, err := e.store.EnsureSpace(ctx, profile.Provider, profile.Model, profile.Dimension)
	if err != nil {
		return nil, fmt.Errorf("ensure vector space: %w", err)
	}

	similar, err := e.similarTo(ctx, space.ID, vector, scope)
	if err != nil {
		// Near-duplicate detection is advisory only.
		e.logger.Warn().Err(err).Msg("similarity probe failed")
		similar = nil
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	if err := tx.CreateMemory(ctx, item); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost a race against a concurrent save of the same
			// content; treat it as the duplicate it is.
			existing, gerr := e.store.GetMemoryByFingerprint(ctx, scope, fingerprint)
			if gerr != nil {
				return nil, fmt.Errorf("load concurrent duplicate: %w", gerr)
			}
			return e.refreshDuplicate(ctx, existing, turn)
		}
		return nil, fmt.Errorf("create memory: %w", err)
	}
	if err := tx.UpsertVector(ctx, item.ID, space.ID, vector); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("store vector: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save: %w", err)
	}

	e.logger.Info().
		Int64("id", item.ID).
		Str("tier", string(tier)).
		Str("scope", scope).
		Int("similar", len(similar)).
		Msg("memory saved")
	return &SaveResult{
		Memory:      item,
		Similar:     similar,
		VectorSpace: profile.String(),
	}, nil
}

// refreshDuplicate promotes an already-stored copy of saved content to
// hot in the current session instead of inserting a second row.
func (e *Engine) refreshDuplicate(ctx context.Context, existing *types.MemoryItem, turn int64) (*SaveResult, error) {
	if err := e.store.TouchMemories(ctx, []int64{existing.ID}, e.sessionID, turn); err != nil {
		return nil, fmt.Errorf("refresh duplicate: %w", err)
	}
	existing.State = types.StateHot
	existing.SessionID = e.sessionID
	existing.LastAccessTurn = turn
	existing.LastAccessAt = time.Now().UTC()

	e.logger.Debug().
		Int64("id", existing.ID).
		Str("scope", existing.Scope).
		Msg("duplicate content, refreshed existing memory")
	return &SaveResult{Memory: existing, Deduplicated: true}, nil
}

// saveVectorless stores a memory that could not be embedded. The item
// stays reachable through keyword search and is picked up by the next
// reindex once a provider recovers.
func (e *Engine) saveVectorless(ctx context.Context, item *types.MemoryItem, turn int64, cause error) (*SaveResult, error) {
	if err := e.store.CreateMemory(ctx, item); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			existing, gerr := e.store.GetMemoryByFingerprint(ctx, item.Scope, item.Fingerprint)
			if gerr != nil {
				return nil, fmt.Errorf("load concurrent duplicate: %w", gerr)
			}
			return e.refreshDuplicate(ctx, existing, turn)
		}
		return nil, fmt.Errorf("create memory: %w", err)
	}

	e.logger.Warn().
		Err(cause).
		Int64("id", item.ID).
		Msg("memory saved without vector")
	return &SaveResult{
		Memory:         item,
		Degraded:       true,
		DegradedReason: describeDegradation(cause),
	}, nil
}

// similarTo finds already-stored content in the scope that sits above
// the near-duplicate threshold for the given vector.
func (e *Engine) similarTo(ctx context.Context, spaceID int64, vector []float32, scope string) ([]SimilarWarning, error) {
	neighbors, err := e.store.SearchVector(ctx, spaceID, vector, nearDupProbeLimit, &storage.SearchFilters{
		Scope:        scope,
		MinRelevance: e.cfg.SimilarWarnThreshold,
	})
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.MemoryID
	}
	items, err := e.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.MemoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	warnings := make([]SimilarWarning, 0, len(neighbors))
	for _, n := range neighbors {
		item, ok := byID[n.MemoryID]
		if !ok {
			continue
		}
		warnings = append(warnings, SimilarWarning{
			ID:         item.ID,
			UID:        item.UID,
			Similarity: n.SimilarityScore,
			Preview:    preview(item.Content),
		})
	}
	return warnings, nil
}

// SearchRequest describes one retrieval.
type SearchRequest struct {
	Query string

	// Limit caps the result count; zero means the configured default.
	Limit int

	// Scope restricts results to one scope when set. Constitutional
	// memories match from any scope.
	Scope string

	// IncludeArchived admits archived memories into the results.
	IncludeArchived bool

	// Tiers restricts non-constitutional results to the listed tiers.
	Tiers []types.Tier
}

// Search runs hybrid retrieval: the query is embedded and searched
// against the vector index while the same query runs through keyword
// full-text search, and the two rankings are fused with reciprocal
// rank fusion. Each fused match is weighted by the memory's decayed,
// boosted score. Constitutional memories always lead the results and
// ignore scope filtering; deprecated memories never appear; archived
// memories appear only on request. Every surfaced memory is promoted
// to hot in the current session.
//
// When no provider can embed the query, Search degrades to keyword
// matching alone and flags the response rather than failing.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	for _, tier := range req.Tiers {
		if err := tier.Validate(); err != nil {
			return nil, err
		}
	}

	turn := e.nextTurn()
	filters := searchFilters(req.Scope, req.IncludeArchived)
	candidates := limit * candidateMultiplier

	var (
		vecResults []storage.VectorResult
		txtResults []storage.TextResult
		degraded   string
		provider   string
	)

	vector, profile, embErr := e.embed.Embed(ctx, query, embedder.TaskQuery)
	switch {
	case embErr == nil:
		provider = profile.String()
		space, err := e.store.EnsureSpace(ctx, profile.Provider, profile.Model, profile.Dimension)
		if err != nil {
			return nil, fmt.Errorf("ensure vector space: %w", err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			vecResults, err = e.store.SearchVector(gctx, space.ID, vector, candidates, filters)
			return err
		})
		g.Go(func() error {
			var err error
			txtResults, err = e.store.SearchText(gctx, query, candidates, filters)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("hybrid search: %w", err)
		}
	case errors.Is(embErr, embedder.ErrNoEmbedding):
		degraded = describeDegradation(embErr)
		e.logger.Warn().Err(embErr).Msg("query embedding unavailable, keyword-only search")
		var err error
		txtResults, err = e.store.SearchText(ctx, query, candidates, filters)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
	default:
		return nil, fmt.Errorf("embed query: %w", embErr)
	}

	fused := rrfMerge(vecResults, txtResults, rrfK)
	matchIndex := make(map[int64]fusedMatch, len(fused))
	ids := make([]int64, len(fused))
	for i, m := range fused {
		matchIndex[m.memoryID] = m
		ids[i] = m.memoryID
	}

	items, err := e.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	byID := make(map[int64]*types.MemoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	ranked := make([]*types.SearchResult, 0, len(fused))
	for _, m := range fused {
		item, ok := byID[m.memoryID]
		if !ok {
			continue
		}
		if item.Tier == types.TierConstitutional || item.Tier == types.TierDeprecated {
			continue
		}
		if !tierAllowed(req.Tiers, item.Tier) {
			continue
		}
		eff := EffectiveScore(item, turn)
		ranked = append(ranked, &types.SearchResult{
			Memory:         item,
			MatchScore:     m.score,
			EffectiveScore: eff,
			FinalScore:     m.score * eff,
			Source:         m.source,
		})
	}
	sortResults(ranked)

	pinned, err := e.pinnedConstitutional(ctx, matchIndex, turn, limit)
	if err != nil {
		return nil, fmt.Errorf("pin constitutional: %w", err)
	}

	final := append(pinned, ranked...)
	if len(final) > limit {
		final = final[:limit]
	}
	for i, r := range final {
		r.Rank = i + 1
	}

	if err := e.promote(ctx, final, turn); err != nil {
		// Results are already assembled; a failed promotion should
		// not cost the caller the answer.
		e.logger.Warn().Err(err).Msg("failed to promote surfaced memories")
	}

	e.logger.Debug().
		Int("results", len(final)).
		Int("vector", len(vecResults)).
		Int("keyword", len(txtResults)).
		Bool("degraded", degraded != "").
		Msg("search complete")
	return &types.SearchResponse{
		Results:        final,
		Degraded:       degraded != "",
		DegradedReason: degraded,
		Provider:       provider,
	}, nil
}

// pinnedConstitutional loads constitutional memories and shapes them
// as results that lead the ranking. Matched ones keep their fused
// score and source; the rest surface as pinned with no match score.
func (e *Engine) pinnedConstitutional(ctx context.Context, matches map[int64]fusedMatch, turn int64, limit int) ([]*types.SearchResult, error) {
	items, err := e.store.ListMemoriesByTier(ctx, types.TierConstitutional, limit)
	if err != nil {
		return nil, err
	}

	pinned := make([]*types.SearchResult, 0, len(items))
	for _, item := range items {
		result := &types.SearchResult{
			Memory:         item,
			EffectiveScore: EffectiveScore(item, turn),
			Source:         types.MatchPinned,
		}
		if m, ok := matches[item.ID]; ok {
			result.MatchScore = m.score
			result.Source = m.source
		}
		result.FinalScore = result.MatchScore * result.EffectiveScore
		pinned = append(pinned, result)
	}
	sortResults(pinned)
	return pinned, nil
}

// promote marks surfaced memories hot in the current session.
// Archived results are left alone: archive is only exited through an
// explicit validation verdict, not by being listed.
func (e *Engine) promote(ctx context.Context, results []*types.SearchResult, turn int64) error {
	touched := make([]*types.MemoryItem, 0, len(results))
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if r.Memory.State == types.StateArchived {
			continue
		}
		touched = append(touched, r.Memory)
		ids = append(ids, r.Memory.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.TouchMemories(ctx, ids, e.sessionID, turn); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, m := range touched {
		m.State = types.StateHot
		m.SessionID = e.sessionID
		m.LastAccessTurn = turn
		m.LastAccessAt = now
	}
	return nil
}

// Validate applies a caller's verdict on a memory. Useful content is
// promoted to at least warm (hot stays hot) with its access refreshed;
// outdated content is archived and leaves default search results.
func (e *Engine) Validate(ctx context.Context, memoryID int64, verdict Verdict) (*types.MemoryItem, error) {
	verdict, err := ParseVerdict(string(verdict))
	if err != nil {
		return nil, err
	}

	item, err := e.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	switch verdict {
	case VerdictOutdated:
		if err := e.store.SetMemoryState(ctx, memoryID, types.StateArchived); err != nil {
			return nil, fmt.Errorf("archive memory: %w", err)
		}
		item.State = types.StateArchived
		e.logger.Info().Int64("id", memoryID).Msg("memory archived by validation")

	case VerdictUseful:
		turn := e.nextTurn()
		target := types.StateWarm
		if item.State == types.StateHot {
			target = types.StateHot
		}
		if err := e.store.TouchMemories(ctx, []int64{memoryID}, e.sessionID, turn); err != nil {
			return nil, fmt.Errorf("refresh memory: %w", err)
		}
		if target != types.StateHot {
			if err := e.store.SetMemoryState(ctx, memoryID, target); err != nil {
				return nil, fmt.Errorf("set state: %w", err)
			}
		}
		item.State = target
		item.SessionID = e.sessionID
		item.LastAccessTurn = turn
		item.LastAccessAt = time.Now().UTC()
		e.logger.Info().
			Int64("id", memoryID).
			Str("state", string(target)).
			Msg("memory confirmed useful")
	}
	return item, nil
}

// Delete removes a memory permanently, along with its vectors and
// keyword index entries.
func (e *Engine) Delete(ctx context.Context, memoryID int64) error {
	if err := e.store.DeleteMemory(ctx, memoryID); err != nil {
		return err
	}
	e.logger.Info().Int64("id", memoryID).Msg("memory deleted")
	return nil
}

// Status is a point-in-time view of the engine and its dependencies.
type Status struct {
	SessionID string
	Turn      int64

	// Profile is the active embedding identity; ProfileError explains
	// why none could be resolved.
	Profile      embedder.Profile
	ProfileError string

	Providers map[string]embedder.HealthSnapshot
	Cache     embedder.CacheStats
	Store     *storage.StatusReport
}

// Status reports session identity, the active embedding profile,
// provider health, cache statistics, and stored-corpus counts.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	report, err := e.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage status: %w", err)
	}

	st := &Status{
		SessionID: e.sessionID,
		Turn:      e.turn.Load(),
		Providers: e.embed.Health(),
		Cache:     e.embed.CacheStats(),
		Store:     report,
	}
	if profile, err := e.embed.ActiveProfile(ctx); err != nil {
		st.ProfileError = err.Error()
	} else {
		st.Profile = profile
	}
	return st, nil
}

// SweepStates recomputes memory states from elapsed time since last
// access. Hot memories of the live session are left alone; archived
// memories only leave that state through validation. The run is
// recorded in the maintenance log.
func (e *Engine) SweepStates(ctx context.Context) (int64, error) {
	started := time.Now().UTC()
	affected, err := e.store.SweepStates(ctx, started, e.sessionID)
	e.recordRun(ctx, "sweep", started, affected, "", err)
	if err != nil {
		return 0, fmt.Errorf("sweep states: %w", err)
	}
	e.logger.Info().Int64("affected", affected).Msg("state sweep complete")
	return affected, nil
}

// ProbeProviders retests embedding providers currently marked for
// fallback. Probes that actually tested something land in the
// maintenance log; the all-healthy case is silent.
func (e *Engine) ProbeProviders(ctx context.Context) (probed, recovered int) {
	started := time.Now().UTC()
	probed, recovered = e.embed.ProbeRecovery(ctx)
	if probed > 0 {
		detail := fmt.Sprintf("probed=%d recovered=%d", probed, recovered)
		e.recordRun(ctx, "probe", started, int64(recovered), detail, nil)
		e.logger.Info().
			Int("probed", probed).
			Int("recovered", recovered).
			Msg("provider recovery probe complete")
	}
	return probed, recovered
}

// Reindex embeds every memory that has no vector in the active
// profile's space, in batches processed by up to concurrency workers.
// Items saved during provider outages get their vectors back this
// way, and switching providers backfills the new space. Deprecated
// memories are skipped; any batch served by a fallback provider lands
// in that provider's space instead.
func (e *Engine) Reindex(ctx context.Context, concurrency int) (int64, error) {
	if concurrency <= 0 {
		concurrency = DefaultReindexConcurrency
	}

	started := time.Now().UTC()
	profile, err := e.embed.ActiveProfile(ctx)
	if err != nil {
		e.recordRun(ctx, "reindex", started, 0, "", err)
		return 0, fmt.Errorf("reindex: %w", err)
	}

	total, err := e.reindexMissing(ctx, profile, concurrency)
	e.recordRun(ctx, "reindex", started, total, profile.String(), err)
	if err != nil {
		return total, fmt.Errorf("reindex: %w", err)
	}
	e.logger.Info().Int64("embedded", total).Msg("reindex complete")
	return total, nil
}

func (e *Engine) reindexMissing(ctx context.Context, profile embedder.Profile, concurrency int) (int64, error) {
	space, err := e.store.EnsureSpace(ctx, profile.Provider, profile.Model, profile.Dimension)
	if err != nil {
		return 0, err
	}

	missing, err := e.store.ListMemoriesMissingVector(ctx, space.ID, 0)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(missing); start += reindexBatchSize {
		batch := missing[start:min(start+reindexBatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, item := range batch {
				texts[i] = item.Content
			}
			vectors, served, err := e.embed.EmbedBatch(gctx, texts, embedder.TaskDocument)
			if err != nil {
				return err
			}

			target := space
			if served != profile {
				target, err = e.store.EnsureSpace(gctx, served.Provider, served.Model, served.Dimension)
				if err != nil {
					return err
				}
				e.logger.Warn().
					Str("profile", served.String()).
					Msg("reindex batch served by fallback profile")
			}

			tx, err := e.store.BeginTx(gctx)
			if err != nil {
				return err
			}
			for i, item := range batch {
				if err := tx.UpsertVector(gctx, item.ID, target.ID, vectors[i]); err != nil {
					_ = tx.Rollback()
					return err
				}
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			stored.Add(int64(len(batch)))
			return nil
		})
	}
	err = g.Wait()
	return stored.Load(), err
}

// recordRun persists one maintenance pass to the run log. Recording
// failures are logged, not propagated; the pass itself already
// happened.
func (e *Engine) recordRun(ctx context.Context, kind string, started time.Time, affected int64, detail string, runErr error) {
	run := &storage.MaintenanceRun{
		Kind:       kind,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Affected:   affected,
		Detail:     detail,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.store.RecordMaintenanceRun(ctx, run); err != nil {
		e.logger.Warn().Err(err).Str("kind", kind).Msg("failed to record maintenance run")
	}
}

/// searchFilters shapes storage filters for one search: deprecated
// memories never match, archived ones only when asked for.
func searchFilters(scope string, includeArchived bool) *storage.SearchFilters {
	f := &storage.SearchFilters{
		Scope:        scope,
		ExcludeTiers: []types.Tier{types.TierDeprecated},
	}
	if !includeArchived {
		f.States = []types.State{types.StateHot, types.StateWarm, types.StateCold, types.StateDormant}
	}
	return f
}

func tierAllowed(allowed []types.Tier, tier types.Tier) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// sortResults orders by final score, breaking ties by base score and
// then ID so equal-scoring results come back in a stable order.
func sortResults(results []*types.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].Memory.BaseScore != results[j].Memory.BaseScore {
			return results[i].Memory.BaseScore > results[j].Memory.BaseScore
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}

// describeDegradation turns a provider-exhaustion error into the
// reason string surfaced to callers.
func describeDegradation(err error) string {
	var exhausted *embedder.ExhaustionError
	if errors.As(err, &exhausted) && len(exhausted.Providers) > 0 {
		return fmt.Sprintf("embedding unavailable (providers tried: %s)", strings.Join(exhausted.Providers, ", "))
	}
	return "embedding unavailable: " + err.Error()
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "..."
}
