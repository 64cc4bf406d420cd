// Package storage provides SQLite-based persistence for memories and
// their embeddings.
//
// The storage layer manages:
//   - Memory records and their lifecycle states
//   - Vector spaces (one per provider/model/dimension)
//   - Vector embeddings, keyed by memory and space
//   - Full-text search indexes
//   - Maintenance run bookkeeping
//
// # Database Schema
//
// Tables:
//   - memories: Memory content, tier, score, state, access bookkeeping
//   - memories_fts: FTS5 full-text search index over memory content
//   - vector_spaces: One row per embedding coordinate system
//   - memory_vectors: Embeddings, one row per memory per space
//   - maintenance_runs: Probe, sweep, and reindex history
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.engram/engram.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	memory := &types.MemoryItem{
//	    UID:     uuid.NewString(),
//	    Content: "Always run gofmt before committing",
//	    Scope:   "project:engram",
//	    Tier:    types.TierImportant,
//	}
//	memory.ComputeFingerprint()
//	err = db.CreateMemory(ctx, memory)
//
// # Vector Spaces
//
// Vectors from different providers or models are never comparable, so
// each (provider, model, dimension) triple gets its own space. Search
// always runs within a single space:
//
//	space, _ := db.EnsureSpace(ctx, "gemini", "text-embedding-004", 768)
//	_ = db.UpsertVector(ctx, memory.ID, space.ID, vector)
//
//	results, _ := db.SearchVector(ctx, space.ID, queryVector, 10, nil)
//
// Vector search uses cosine similarity via the sqlite-vec extension
// (CGO build) or a pure Go scan (purego build).
//
// # Full-Text Search
//
// Query using BM25 ranking. Scores are normalized to (0, 1], higher is
// better:
//
//	results, _ := db.SearchText(ctx, "gofmt commit", 10, &storage.SearchFilters{
//	    Scope:        "project:engram",
//	    ExcludeTiers: []types.Tier{types.TierDeprecated},
//	})
//
// FTS5 indexes are automatically updated by triggers when memories are
// inserted, updated, or deleted.
//
// # Lifecycle Sweeps
//
// SweepStates demotes memories by access age in a single statement.
// Archived rows stay archived, and hot rows belonging to the active
// session are never demoted:
//
//	changed, _ := db.SweepStates(ctx, time.Now(), sessionID)
//
// # Transactions
//
// Use transactions for atomic multi-row operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.CreateMemory(ctx, memory); err != nil {
//	    return err
//	}
//	if err := tx.UpsertVector(ctx, memory.ID, space.ID, vector); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Includes sqlite-vec extension for fast vector operations
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pure Go vector operations (slower)
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
