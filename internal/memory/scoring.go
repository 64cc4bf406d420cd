package memory

import (
	"math"
	"sort"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// rrfK is the reciprocal rank fusion constant. Larger values flatten
// the difference between adjacent ranks; 60 is the value from the
// original RRF paper and works well for short candidate lists.
const rrfK = 60

// DecayedScore returns a memory's base score after per-turn decay.
// Protected tiers keep their base score no matter how many turns have
// passed; everything else loses (1 - decayRate) per turn since last
// access. The tier boost is deliberately not part of this value: decay
// models forgetting, the boost models importance, and only ranking
// combines the two.
func DecayedScore(m *types.MemoryItem, currentTurn int64) float64 {
	elapsed := currentTurn - m.LastAccessTurn
	if elapsed <= 0 {
		return m.BaseScore
	}
	rate := m.Tier.DecayRate()
	if rate >= 1.0 {
		return m.BaseScore
	}
	return m.BaseScore * math.Pow(rate, float64(elapsed))
}

// EffectiveScore is the decayed score with the tier boost applied.
// This is the multiplier ranking uses on top of the match score.
func EffectiveScore(m *types.MemoryItem, currentTurn int64) float64 {
	return DecayedScore(m, currentTurn) * m.Tier.SearchBoost()
}

// fusedMatch is one memory's combined standing across the vector and
// keyword result lists.
type fusedMatch struct {
	memoryID   int64
	score      float64
	similarity float64
	source     types.MatchSource
}

// rrfMerge fuses a vector result list and a keyword result list with
// reciprocal rank fusion: each list contributes 1/(k+rank) per entry,
// so a memory near the top of both lists beats one that tops only a
// single list. Either list may be empty. Results come back sorted by
// fused score descending, memory ID ascending on ties.
func rrfMerge(vector []storage.VectorResult, text []storage.TextResult, k int) []fusedMatch {
	if k <= 0 {
		k = rrfK
	}

	byID := make(map[int64]*fusedMatch, len(vector)+len(text))

	for rank, res := range vector {
		byID[res.MemoryID] = &fusedMatch{
			memoryID:   res.MemoryID,
			score:      1.0 / float64(k+rank+1),
			similarity: res.SimilarityScore,
			source:     types.MatchVector,
		}
	}

	for rank, res := range text {
		contribution := 1.0 / float64(k+rank+1)
		if existing, ok := byID[res.MemoryID]; ok {
			existing.score += contribution
			existing.source = types.MatchBoth
			continue
		}
		byID[res.MemoryID] = &fusedMatch{
			memoryID: res.MemoryID,
			score:    contribution,
			source:   types.MatchKeyword,
		}
	}

	merged := make([]fusedMatch, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, *m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].memoryID < merged[j].memoryID
	})
	return merged
}
