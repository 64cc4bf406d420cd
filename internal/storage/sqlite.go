package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engram/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch is returned when a vector does not fit its space
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Both SQLite drivers surface the constraint name in the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Memory operations

// createMemoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createMemoryWithQuerier(ctx context.Context, q querier, memory *types.MemoryItem) error {
	query := `
		INSERT INTO memories (uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.LastAccessAt.IsZero() {
		memory.LastAccessAt = memory.CreatedAt
	}
	memory.UpdatedAt = now

	result, err := q.ExecContext(ctx, query,
		memory.UID, memory.Content, memory.Fingerprint, memory.Scope,
		string(memory.Tier), memory.BaseScore, string(memory.State), memory.SessionID,
		memory.LastAccessTurn, memory.LastAccessAt, memory.CreatedAt, memory.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: memory with scope %q and fingerprint %q", ErrAlreadyExists, memory.Scope, memory.Fingerprint)
		}
		return fmt.Errorf("failed to create memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	memory.ID = id
	return nil
}

func (s *SQLiteStorage) CreateMemory(ctx context.Context, memory *types.MemoryItem) error {
	return s.createMemoryWithQuerier(ctx, s.querier(), memory)
}

// getMemoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getMemoryWithQuerier(ctx context.Context, q querier, memoryID int64) (*types.MemoryItem, error) {
	query := `
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories WHERE id = ?
	`
	var memory types.MemoryItem
	err := q.QueryRowContext(ctx, query, memoryID).Scan(
		&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
		&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
		&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

func (s *SQLiteStorage) GetMemory(ctx context.Context, memoryID int64) (*types.MemoryItem, error) {
	return s.getMemoryWithQuerier(ctx, s.querier(), memoryID)
}

// getMemoryByUIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getMemoryByUIDWithQuerier(ctx context.Context, q querier, uid string) (*types.MemoryItem, error) {
	query := `
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories WHERE uid = ?
	`
	var memory types.MemoryItem
	err := q.QueryRowContext(ctx, query, uid).Scan(
		&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
		&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
		&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

func (s *SQLiteStorage) GetMemoryByUID(ctx context.Context, uid string) (*types.MemoryItem, error) {
	return s.getMemoryByUIDWithQuerier(ctx, s.querier(), uid)
}

// getMemoryByFingerprintWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getMemoryByFingerprintWithQuerier(ctx context.Context, q querier, scope, fingerprint string) (*types.MemoryItem, error) {
	query := `
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories WHERE scope = ? AND fingerprint = ?
	`
	var memory types.MemoryItem
	err := q.QueryRowContext(ctx, query, scope, fingerprint).Scan(
		&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
		&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
		&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

func (s *SQLiteStorage) GetMemoryByFingerprint(ctx context.Context, scope, fingerprint string) (*types.MemoryItem, error) {
	return s.getMemoryByFingerprintWithQuerier(ctx, s.querier(), scope, fingerprint)
}

// getMemoriesByIDsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getMemoriesByIDsWithQuerier(ctx context.Context, q querier, memoryIDs []int64) ([]*types.MemoryItem, error) {
	if len(memoryIDs) == 0 {
		return []*types.MemoryItem{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	query := fmt.Sprintf(`
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories WHERE id IN (%s)
	`, placeholders)

	args := make([]interface{}, len(memoryIDs))
	for i, id := range memoryIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories := make([]*types.MemoryItem, 0, len(memoryIDs))
	for rows.Next() {
		var memory types.MemoryItem
		err := rows.Scan(
			&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
			&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
			&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		memories = append(memories, &memory)
	}
	return memories, rows.Err()
}

func (s *SQLiteStorage) GetMemoriesByIDs(ctx context.Context, memoryIDs []int64) ([]*types.MemoryItem, error) {
	return s.getMemoriesByIDsWithQuerier(ctx, s.querier(), memoryIDs)
}

// updateMemoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateMemoryWithQuerier(ctx context.Context, q querier, memory *types.MemoryItem) error {
	query := `
		UPDATE memories
		SET content = ?, fingerprint = ?, scope = ?, tier = ?, base_score = ?,
		    state = ?, session_id = ?, last_access_turn = ?, last_access_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		memory.Content, memory.Fingerprint, memory.Scope, string(memory.Tier), memory.BaseScore,
		string(memory.State), memory.SessionID, memory.LastAccessTurn, memory.LastAccessAt, now,
		memory.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: memory with scope %q and fingerprint %q", ErrAlreadyExists, memory.Scope, memory.Fingerprint)
		}
		return fmt.Errorf("failed to update memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	memory.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateMemory(ctx context.Context, memory *types.MemoryItem) error {
	return s.updateMemoryWithQuerier(ctx, s.querier(), memory)
}

// deleteMemoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteMemoryWithQuerier(ctx context.Context, q querier, memoryID int64) error {
	result, err := q.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", memoryID)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteMemory(ctx context.Context, memoryID int64) error {
	return s.deleteMemoryWithQuerier(ctx, s.querier(), memoryID)
}

// listMemoriesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listMemoriesWithQuerier(ctx context.Context, q querier, scope string, limit int) ([]*types.MemoryItem, error) {
	query := `
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories
	`
	args := []interface{}{}
	if scope != "" {
		query += " WHERE scope = ?"
		args = append(args, scope)
	}
	query += " ORDER BY last_access_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories := make([]*types.MemoryItem, 0)
	for rows.Next() {
		var memory types.MemoryItem
		err := rows.Scan(
			&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
			&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
			&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		memories = append(memories, &memory)
	}
	return memories, rows.Err()
}

func (s *SQLiteStorage) ListMemories(ctx context.Context, scope string, limit int) ([]*types.MemoryItem, error) {
	return s.listMemoriesWithQuerier(ctx, s.querier(), scope, limit)
}

// listMemoriesByTierWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listMemoriesByTierWithQuerier(ctx context.Context, q querier, tier types.Tier, limit int) ([]*types.MemoryItem, error) {
	query := `
		SELECT id, uid, content, fingerprint, scope, tier, base_score, state, session_id, last_access_turn, last_access_at, created_at, updated_at
		FROM memories WHERE tier = ?
		ORDER BY base_score DESC, id ASC
	`
	args := []interface{}{string(tier)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories by tier: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories := make([]*types.MemoryItem, 0)
	for rows.Next() {
		var memory types.MemoryItem
		err := rows.Scan(
			&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
			&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
			&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		memories = append(memories, &memory)
	}
	return memories, rows.Err()
}

func (s *SQLiteStorage) ListMemoriesByTier(ctx context.Context, tier types.Tier, limit int) ([]*types.MemoryItem, error) {
	return s.listMemoriesByTierWithQuerier(ctx, s.querier(), tier, limit)
}

// Access bookkeeping and lifecycle

// touchMemoriesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) touchMemoriesWithQuerier(ctx context.Context, q querier, memoryIDs []int64, sessionID string, turn int64) error {
	if len(memoryIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	query := fmt.Sprintf(`
		UPDATE memories
		SET state = ?, session_id = ?, last_access_turn = ?, last_access_at = ?, updated_at = ?
		WHERE id IN (%s)
	`, placeholders)

	now := time.Now().UTC()
	args := []interface{}{string(types.StateHot), sessionID, turn, now, now}
	for _, id := range memoryIDs {
		args = append(args, id)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to touch memories: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TouchMemories(ctx context.Context, memoryIDs []int64, sessionID string, turn int64) error {
	return s.touchMemoriesWithQuerier(ctx, s.querier(), memoryIDs, sessionID, turn)
}

// setMemoryStateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) setMemoryStateWithQuerier(ctx context.Context, q querier, memoryID int64, state types.State) error {
	result, err := q.ExecContext(ctx,
		"UPDATE memories SET state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().UTC(), memoryID)
	if err != nil {
		return fmt.Errorf("failed to set memory state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) SetMemoryState(ctx context.Context, memoryID int64, state types.State) error {
	return s.setMemoryStateWithQuerier(ctx, s.querier(), memoryID, state)
}

// sweepStatesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) sweepStatesWithQuerier(ctx context.Context, q querier, now time.Time, activeSessionID string) (int64, error) {
	// Each row moves to the state its access age dictates. Archived rows
	// only leave that state through validation, and hot rows belonging to
	// the active session are left alone. julianday() keeps the comparison
	// correct regardless of how the driver formats timestamps.
	query := `
		UPDATE memories
		SET state = CASE
				WHEN julianday(last_access_at) <= julianday(?) THEN 'archived'
				WHEN julianday(last_access_at) <= julianday(?) THEN 'dormant'
				WHEN julianday(last_access_at) <= julianday(?) THEN 'cold'
				ELSE 'warm'
			END,
			updated_at = ?
		WHERE state != 'archived'
		  AND NOT (state = 'hot' AND session_id = ?)
		  AND state != CASE
				WHEN julianday(last_access_at) <= julianday(?) THEN 'archived'
				WHEN julianday(last_access_at) <= julianday(?) THEN 'dormant'
				WHEN julianday(last_access_at) <= julianday(?) THEN 'cold'
				ELSE 'warm'
			END
	`
	now = now.UTC()
	archivedCutoff := now.Add(-types.DormantMaxAge)
	dormantCutoff := now.Add(-types.ColdMaxAge)
	coldCutoff := now.Add(-types.WarmMaxAge)

	result, err := q.ExecContext(ctx, query,
		archivedCutoff, dormantCutoff, coldCutoff, now, activeSessionID,
		archivedCutoff, dormantCutoff, coldCutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep memory states: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) SweepStates(ctx context.Context, now time.Time, activeSessionID string) (int64, error) {
	return s.sweepStatesWithQuerier(ctx, s.querier(), now, activeSessionID)
}

// Vector space operations

// ensureSpaceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) ensureSpaceWithQuerier(ctx context.Context, q querier, provider, model string, dimension int) (*VectorSpace, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}

	// Use atomic INSERT ... ON CONFLICT so concurrent callers converge
	// on the same row
	query := `
		INSERT INTO vector_spaces (provider, model, dimension, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, model, dimension) DO UPDATE SET
			provider = excluded.provider
		RETURNING id, created_at
	`
	space := &VectorSpace{
		Provider:  provider,
		Model:     model,
		Dimension: dimension,
	}
	err := q.QueryRowContext(ctx, query, provider, model, dimension, time.Now().UTC()).
		Scan(&space.ID, &space.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure vector space: %w", err)
	}
	return space, nil
}

func (s *SQLiteStorage) EnsureSpace(ctx context.Context, provider, model string, dimension int) (*VectorSpace, error) {
	return s.ensureSpaceWithQuerier(ctx, s.querier(), provider, model, dimension)
}

// getSpaceByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSpaceByIDWithQuerier(ctx context.Context, q querier, spaceID int64) (*VectorSpace, error) {
	var space VectorSpace
	err := q.QueryRowContext(ctx,
		"SELECT id, provider, model, dimension, created_at FROM vector_spaces WHERE id = ?",
		spaceID).Scan(&space.ID, &space.Provider, &space.Model, &space.Dimension, &space.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &space, nil
}

// listSpacesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listSpacesWithQuerier(ctx context.Context, q querier) ([]*VectorSpace, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, provider, model, dimension, created_at FROM vector_spaces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list vector spaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	spaces := make([]*VectorSpace, 0)
	for rows.Next() {
		var space VectorSpace
		if err := rows.Scan(&space.ID, &space.Provider, &space.Model, &space.Dimension, &space.CreatedAt); err != nil {
			return nil, err
		}
		spaces = append(spaces, &space)
	}
	return spaces, rows.Err()
}

func (s *SQLiteStorage) ListSpaces(ctx context.Context) ([]*VectorSpace, error) {
	return s.listSpacesWithQuerier(ctx, s.querier())
}

// Vector operations

// upsertVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertVectorWithQuerier(ctx context.Context, q querier, memoryID, spaceID int64, vector []float32) error {
	space, err := s.getSpaceByIDWithQuerier(ctx, q, spaceID)
	if err != nil {
		return err
	}
	if len(vector) != space.Dimension {
		return fmt.Errorf("%w: space %s/%s expects %d dimensions, got %d",
			ErrDimensionMismatch, space.Provider, space.Model, space.Dimension, len(vector))
	}

	query := `
		INSERT INTO memory_vectors (memory_id, space_id, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id, space_id) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, query, memoryID, spaceID, serializeVector(vector), now, now); err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertVector(ctx context.Context, memoryID, spaceID int64, vector []float32) error {
	return s.upsertVectorWithQuerier(ctx, s.querier(), memoryID, spaceID, vector)
}

// getVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getVectorWithQuerier(ctx context.Context, q querier, memoryID, spaceID int64) ([]float32, error) {
	var blob []byte
	err := q.QueryRowContext(ctx,
		"SELECT embedding FROM memory_vectors WHERE memory_id = ? AND space_id = ?",
		memoryID, spaceID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deserializeVector(blob), nil
}

func (s *SQLiteStorage) GetVector(ctx context.Context, memoryID, spaceID int64) ([]float32, error) {
	return s.getVectorWithQuerier(ctx, s.querier(), memoryID, spaceID)
}

// deleteVectorsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteVectorsWithQuerier(ctx context.Context, q querier, memoryID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM memory_vectors WHERE memory_id = ?", memoryID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteVectors(ctx context.Context, memoryID int64) error {
	return s.deleteVectorsWithQuerier(ctx, s.querier(), memoryID)
}

// listMemoriesMissingVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listMemoriesMissingVectorWithQuerier(ctx context.Context, q querier, spaceID int64, limit int) ([]*types.MemoryItem, error) {
	// Deprecated memories are never searched, so there is no point
	// embedding them
	query := `
		SELECT m.id, m.uid, m.content, m.fingerprint, m.scope, m.tier, m.base_score, m.state, m.session_id, m.last_access_turn, m.last_access_at, m.created_at, m.updated_at
		FROM memories m
		LEFT JOIN memory_vectors mv ON mv.memory_id = m.id AND mv.space_id = ?
		WHERE mv.memory_id IS NULL AND m.tier != 'deprecated'
		ORDER BY m.id
	`
	args := []interface{}{spaceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories missing vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories := make([]*types.MemoryItem, 0)
	for rows.Next() {
		var memory types.MemoryItem
		err := rows.Scan(
			&memory.ID, &memory.UID, &memory.Content, &memory.Fingerprint, &memory.Scope,
			&memory.Tier, &memory.BaseScore, &memory.State, &memory.SessionID,
			&memory.LastAccessTurn, &memory.LastAccessAt, &memory.CreatedAt, &memory.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		memories = append(memories, &memory)
	}
	return memories, rows.Err()
}

func (s *SQLiteStorage) ListMemoriesMissingVector(ctx context.Context, spaceID int64, limit int) ([]*types.MemoryItem, error) {
	return s.listMemoriesMissingVectorWithQuerier(ctx, s.querier(), spaceID, limit)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, spaceID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, spaceID, vector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.db, query, limit, filters)
}

// Maintenance bookkeeping

// recordMaintenanceRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) recordMaintenanceRunWithQuerier(ctx context.Context, q querier, run *MaintenanceRun) error {
	query := `
		INSERT INTO maintenance_runs (kind, started_at, finished_at, affected, detail, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		run.Kind, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Affected, run.Detail, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record maintenance run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

func (s *SQLiteStorage) RecordMaintenanceRun(ctx context.Context, run *MaintenanceRun) error {
	return s.recordMaintenanceRunWithQuerier(ctx, s.querier(), run)
}

// listMaintenanceRunsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listMaintenanceRunsWithQuerier(ctx context.Context, q querier, kind string, limit int) ([]*MaintenanceRun, error) {
	query := "SELECT id, kind, started_at, finished_at, affected, detail, error FROM maintenance_runs"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*MaintenanceRun, 0)
	for rows.Next() {
		var run MaintenanceRun
		err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &run.FinishedAt, &run.Affected, &run.Detail, &run.Error)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStorage) ListMaintenanceRuns(ctx context.Context, kind string, limit int) ([]*MaintenanceRun, error) {
	return s.listMaintenanceRunsWithQuerier(ctx, s.querier(), kind, limit)
}

// Status

// GetStatus returns a summary of the stored memory corpus
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*StatusReport, error) {
	status := &StatusReport{
		StateCounts: make(map[types.State]int),
		TierCounts:  make(map[types.Tier]int),
	}

	// Count memories
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&status.TotalMemories)
	if err != nil {
		return nil, err
	}

	// Count by state
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM memories GROUP BY state")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var state types.State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.StateCounts[state] = count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Count by tier
	rows, err = s.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM memories GROUP BY tier")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var tier types.Tier
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.TierCounts[tier] = count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Count vectors
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_vectors").Scan(&status.VectorCount)
	if err != nil {
		return nil, err
	}

	// Vector spaces
	status.Spaces, err = s.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}

	// Database size
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024.0 * 1024.0)

	// Schema version
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, rowid DESC LIMIT 1").Scan(&status.SchemaVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return status, nil
}

// Transaction method implementations

func (t *sqliteTx) CreateMemory(ctx context.Context, memory *types.MemoryItem) error {
	return t.storage.createMemoryWithQuerier(ctx, t.querier(), memory)
}

func (t *sqliteTx) GetMemory(ctx context.Context, memoryID int64) (*types.MemoryItem, error) {
	return t.storage.getMemoryWithQuerier(ctx, t.querier(), memoryID)
}

func (t *sqliteTx) GetMemoryByUID(ctx context.Context, uid string) (*types.MemoryItem, error) {
	return t.storage.getMemoryByUIDWithQuerier(ctx, t.querier(), uid)
}

func (t *sqliteTx) GetMemoryByFingerprint(ctx context.Context, scope, fingerprint string) (*types.MemoryItem, error) {
	return t.storage.getMemoryByFingerprintWithQuerier(ctx, t.querier(), scope, fingerprint)
}

func (t *sqliteTx) GetMemoriesByIDs(ctx context.Context, memoryIDs []int64) ([]*types.MemoryItem, error) {
	return t.storage.getMemoriesByIDsWithQuerier(ctx, t.querier(), memoryIDs)
}

func (t *sqliteTx) UpdateMemory(ctx context.Context, memory *types.MemoryItem) error {
	return t.storage.updateMemoryWithQuerier(ctx, t.querier(), memory)
}

func (t *sqliteTx) DeleteMemory(ctx context.Context, memoryID int64) error {
	return t.storage.deleteMemoryWithQuerier(ctx, t.querier(), memoryID)
}

func (t *sqliteTx) ListMemories(ctx context.Context, scope string, limit int) ([]*types.MemoryItem, error) {
	return t.storage.listMemoriesWithQuerier(ctx, t.querier(), scope, limit)
}

func (t *sqliteTx) ListMemoriesByTier(ctx context.Context, tier types.Tier, limit int) ([]*types.MemoryItem, error) {
	return t.storage.listMemoriesByTierWithQuerier(ctx, t.querier(), tier, limit)
}

func (t *sqliteTx) TouchMemories(ctx context.Context, memoryIDs []int64, sessionID string, turn int64) error {
	return t.storage.touchMemoriesWithQuerier(ctx, t.querier(), memoryIDs, sessionID, turn)
}

func (t *sqliteTx) SetMemoryState(ctx context.Context, memoryID int64, state types.State) error {
	return t.storage.setMemoryStateWithQuerier(ctx, t.querier(), memoryID, state)
}

func (t *sqliteTx) SweepStates(ctx context.Context, now time.Time, activeSessionID string) (int64, error) {
	return t.storage.sweepStatesWithQuerier(ctx, t.querier(), now, activeSessionID)
}

func (t *sqliteTx) EnsureSpace(ctx context.Context, provider, model string, dimension int) (*VectorSpace, error) {
	return t.storage.ensureSpaceWithQuerier(ctx, t.querier(), provider, model, dimension)
}

func (t *sqliteTx) ListSpaces(ctx context.Context) ([]*VectorSpace, error) {
	return t.storage.listSpacesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertVector(ctx context.Context, memoryID, spaceID int64, vector []float32) error {
	return t.storage.upsertVectorWithQuerier(ctx, t.querier(), memoryID, spaceID, vector)
}

func (t *sqliteTx) GetVector(ctx context.Context, memoryID, spaceID int64) ([]float32, error) {
	return t.storage.getVectorWithQuerier(ctx, t.querier(), memoryID, spaceID)
}

func (t *sqliteTx) DeleteVectors(ctx context.Context, memoryID int64) error {
	return t.storage.deleteVectorsWithQuerier(ctx, t.querier(), memoryID)
}

func (t *sqliteTx) ListMemoriesMissingVector(ctx context.Context, spaceID int64, limit int) ([]*types.MemoryItem, error) {
	return t.storage.listMemoriesMissingVectorWithQuerier(ctx, t.querier(), spaceID, limit)
}

func (t *sqliteTx) SearchVector(ctx context.Context, spaceID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return t.storage.SearchVector(ctx, spaceID, vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return t.storage.SearchText(ctx, query, limit, filters)
}

func (t *sqliteTx) RecordMaintenanceRun(ctx context.Context, run *MaintenanceRun) error {
	return t.storage.recordMaintenanceRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) ListMaintenanceRuns(ctx context.Context, kind string, limit int) ([]*MaintenanceRun, error) {
	return t.storage.listMaintenanceRunsWithQuerier(ctx, t.querier(), kind, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*StatusReport, error) {
	return t.storage.GetStatus(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	// We return an error to prevent accidental misuse
	// If savepoints are needed in the future, implement here
	return nil, errors.New("nested transactions not supported")
}
