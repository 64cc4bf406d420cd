package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, spaceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, spaceID, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, spaceID, queryVector, limit, filters)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, spaceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// Serialize query vector for sqlite-vec
	queryVectorBlob := serializeVector(queryVector)

	// Build SQL query that computes distance at database layer
	// Note: sqlite-vec's vec_distance_cosine returns distance (lower is better)
	// We convert to similarity (1 - distance) to maintain API compatibility
	query := `
		SELECT
			mv.memory_id,
			1.0 - vec_distance_cosine(mv.embedding, ?) as similarity
		FROM memory_vectors mv
		INNER JOIN memories m ON m.id = mv.memory_id
		WHERE mv.space_id = ?
	`
	args := []interface{}{queryVectorBlob, spaceID}

	// Apply filters in SQL WHERE clause
	query, args = applyMemoryFilters(query, args, filters)

	// Apply minimum relevance filter in SQL if specified
	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(mv.embedding, ?)) >= ?"
		args = append(args, queryVectorBlob, filters.MinRelevance)
	}

	// Order by similarity (descending) and apply LIMIT in SQL
	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	// Execute query - results are already sorted and filtered
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Collect results - no sorting needed as SQL handles it
	// Handle edge case: negative or zero limit
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.MemoryID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, db *sql.DB, spaceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// Build query with filters
	query := `
		SELECT
			mv.memory_id,
			mv.embedding
		FROM memory_vectors mv
		INNER JOIN memories m ON m.id = mv.memory_id
		WHERE mv.space_id = ?
	`
	args := []interface{}{spaceID}

	// Apply filters
	query, args = applyMemoryFilters(query, args, filters)

	// Execute query to get all candidate embeddings
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Compute similarity scores and rank in Go
	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}

	// Sort by similarity (descending)
	sortCandidates(candidates)

	// Return top K
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, db *sql.DB, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	// Sanitize query for FTS5
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	// Build query with filters
	sqlQuery := `
		SELECT
			m.id,
			bm25(memories_fts) as score
		FROM memories_fts
		INNER JOIN memories m ON memories_fts.rowid = m.id
		WHERE memories_fts MATCH ?
	`
	args := []interface{}{sanitized}

	// Apply filters
	sqlQuery, args = applyMemoryFilters(sqlQuery, args, filters)

	// Order by BM25 score (lower is better) and limit
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	// Execute query
	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Collect and normalize results
	return collectTextResults(rows, filters)
}

// Helper functions

// applyMemoryFilters adds WHERE clause filters shared by vector and text search.
// The memories table must be aliased as m in the calling query.
func applyMemoryFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if filters.Scope != "" {
		// Constitutional memories apply everywhere and ignore scoping
		query += " AND (m.scope = ? OR m.tier = 'constitutional')"
		args = append(args, filters.Scope)
	}

	if len(filters.States) > 0 {
		query += " AND m.state IN ("
		for i, state := range filters.States {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(state))
		}
		query += ")"
	}

	if len(filters.ExcludeTiers) > 0 {
		query += " AND m.tier NOT IN ("
		for i, tier := range filters.ExcludeTiers {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(tier))
		}
		query += ")"
	}

	return query, args
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *SearchFilters) ([]candidate, error) {
	candidates := make([]candidate, 0, 1000)

	for rows.Next() {
		var memoryID int64
		var vectorBlob []byte
		if err := rows.Scan(&memoryID, &vectorBlob); err != nil {
			return nil, err
		}

		// Deserialize vector
		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		// Compute cosine similarity
		similarity := cosineSimilarity(queryVector, vector)

		// Apply minimum relevance filter
		if filters != nil && filters.MinRelevance > 0 && similarity < filters.MinRelevance {
			continue
		}

		candidates = append(candidates, candidate{memoryID: memoryID, score: similarity})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	// Handle negative or zero limit - return all candidates
	if limit <= 0 {
		limit = len(candidates)
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			MemoryID:        candidates[i].memoryID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows, filters *SearchFilters) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.MemoryID, &result.BM25Score); err != nil {
			return nil, err
		}

		// Convert BM25 score (negative, lower is better) to positive normalized score
		// BM25 scores are typically in range [-50, 0]
		normalizedScore := 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		result.BM25Score = normalizedScore

		// Apply minimum relevance filter
		if filters != nil && filters.MinRelevance > 0 && result.BM25Score < filters.MinRelevance {
			continue
		}

		results = append(results, result)
	}

	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a memory with its similarity score
type candidate struct {
	memoryID int64
	score    float64
}

// sortCandidates sorts candidates by score in descending order using O(n log n) algorithm
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// sanitizeFTSQuery shapes a raw search query into a safe FTS5 MATCH
// expression. Each whitespace-separated word becomes a quoted string,
// which strips all query syntax: operators (AND, OR, NOT, NEAR),
// wildcards, grouping, and column filters all lose their meaning inside
// quotes. FTS5 has no backslash escaping, so quoting is the only form
// that neutralizes every special character. The words combine with the
// implicit AND between query terms.
func sanitizeFTSQuery(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}

	quoted := make([]string, len(words))
	for i, word := range words {
		// A literal double quote inside an FTS5 string is escaped by
		// doubling it.
		quoted[i] = `"` + strings.ReplaceAll(word, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
