package types

// MatchSource identifies which retrieval path produced a result.
type MatchSource string

const (
	MatchVector  MatchSource = "vector"
	MatchKeyword MatchSource = "keyword"
	MatchBoth    MatchSource = "both"
	// MatchPinned marks a constitutional memory surfaced by its tier
	// rather than by query relevance.
	MatchPinned MatchSource = "pinned"
)

// SearchResult represents a single ranked search result
type SearchResult struct {
	// Identification
	Rank   int // Position in result set (1-based)
	Memory *MemoryItem

	// Scoring
	MatchScore     float64 // Fused vector + keyword score (RRF)
	EffectiveScore float64 // baseScore x decay^turns x tier boost
	FinalScore     float64 // MatchScore x EffectiveScore; rank key

	// Metadata
	Source MatchSource
}

// SearchResponse is the full result set for one query, including the
// degraded-mode contract: when only keyword matching was available,
// Degraded is true and DegradedReason explains why.
type SearchResponse struct {
	Results        []*SearchResult
	Degraded       bool
	DegradedReason string
	Provider       string // active embedding profile, e.g. "gemini/text-embedding-004 (768-dim)"
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Memory == nil {
		return ErrMissingMemory
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	return nil
}
