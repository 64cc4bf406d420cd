package storage

import (
	"context"
	"time"

	"github.com/engramlabs/engram/pkg/types"
)

// Storage defines the interface for memory persistence operations
type Storage interface {
	// Memory operations
	CreateMemory(ctx context.Context, memory *types.MemoryItem) error
	GetMemory(ctx context.Context, memoryID int64) (*types.MemoryItem, error)
	GetMemoryByUID(ctx context.Context, uid string) (*types.MemoryItem, error)
	GetMemoryByFingerprint(ctx context.Context, scope, fingerprint string) (*types.MemoryItem, error)
	GetMemoriesByIDs(ctx context.Context, memoryIDs []int64) ([]*types.MemoryItem, error)
	UpdateMemory(ctx context.Context, memory *types.MemoryItem) error
	DeleteMemory(ctx context.Context, memoryID int64) error
	ListMemories(ctx context.Context, scope string, limit int) ([]*types.MemoryItem, error)
	ListMemoriesByTier(ctx context.Context, tier types.Tier, limit int) ([]*types.MemoryItem, error)

	// Access bookkeeping and lifecycle
	TouchMemories(ctx context.Context, memoryIDs []int64, sessionID string, turn int64) error
	SetMemoryState(ctx context.Context, memoryID int64, state types.State) error
	SweepStates(ctx context.Context, now time.Time, activeSessionID string) (int64, error)

	// Vector space operations
	EnsureSpace(ctx context.Context, provider, model string, dimension int) (*VectorSpace, error)
	ListSpaces(ctx context.Context) ([]*VectorSpace, error)

	// Vector operations
	UpsertVector(ctx context.Context, memoryID, spaceID int64, vector []float32) error
	GetVector(ctx context.Context, memoryID, spaceID int64) ([]float32, error)
	DeleteVectors(ctx context.Context, memoryID int64) error
	ListMemoriesMissingVector(ctx context.Context, spaceID int64, limit int) ([]*types.MemoryItem, error)

	// Search operations
	SearchVector(ctx context.Context, spaceID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Maintenance bookkeeping
	RecordMaintenanceRun(ctx context.Context, run *MaintenanceRun) error
	ListMaintenanceRuns(ctx context.Context, kind string, limit int) ([]*MaintenanceRun, error)

	// Status
	GetStatus(ctx context.Context) (*StatusReport, error)

	// Transaction support
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx represents a database transaction
type Tx interface {
	Storage
	Commit() error
	Rollback() error
}

// VectorSpace identifies one embedding coordinate system. Vectors produced
// by different providers or models are never comparable, so each
// (provider, model, dimension) triple gets its own space and search only
// ever runs within one.
type VectorSpace struct {
	ID        int64
	Provider  string
	Model     string
	Dimension int
	CreatedAt time.Time
}

// SearchFilters contains optional filters applied during search
type SearchFilters struct {
	// Scope restricts results to a single scope. Constitutional memories
	// bypass this filter and match from any scope.
	Scope string
	// States whitelists the memory states to include (empty means all)
	States []types.State
	// ExcludeTiers drops memories in the listed tiers
	ExcludeTiers []types.Tier
	// MinRelevance filters out results below this score (0.0-1.0)
	MinRelevance float64
}

// VectorResult represents a vector similarity search result
type VectorResult struct {
	MemoryID        int64
	SimilarityScore float64
}

// TextResult represents a full-text search result
type TextResult struct {
	MemoryID  int64
	BM25Score float64
}

// MaintenanceRun records one background maintenance pass
type MaintenanceRun struct {
	ID         int64
	Kind       string // "probe", "sweep", or "reindex"
	StartedAt  time.Time
	FinishedAt time.Time
	Affected   int64
	Detail     string
	Error      string
}

// StatusReport summarizes the stored memory corpus
type StatusReport struct {
	TotalMemories  int
	StateCounts    map[types.State]int
	TierCounts     map[types.Tier]int
	VectorCount    int
	Spaces         []*VectorSpace
	DatabaseSizeMB float64
	SchemaVersion  string
}
