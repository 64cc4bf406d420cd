package memory

import (
	"math"
	"testing"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

func scoreItem(tier types.Tier, base float64, lastTurn int64) *types.MemoryItem {
	return &types.MemoryItem{Tier: tier, BaseScore: base, LastAccessTurn: lastTurn}
}

func TestDecayedScore(t *testing.T) {
	tests := []struct {
		name    string
		tier    types.Tier
		base    float64
		last    int64
		current int64
		want    float64
		exact   bool
	}{
		{"normal decays per turn", types.TierNormal, 0.50, 0, 5, 0.16384, false},
		{"temporary decays faster", types.TierTemporary, 0.30, 0, 3, 0.0648, false},
		{"constitutional never decays", types.TierConstitutional, 0.50, 0, 5, 0.50, true},
		{"critical never decays", types.TierCritical, 0.90, 0, 100, 0.90, true},
		{"important never decays", types.TierImportant, 0.70, 0, 1000, 0.70, true},
		{"no turns elapsed", types.TierNormal, 0.50, 7, 7, 0.50, true},
		{"stored turn ahead of counter", types.TierNormal, 0.50, 10, 3, 0.50, true},
		{"single turn", types.TierNormal, 1.0, 4, 5, 0.80, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecayedScore(scoreItem(tt.tier, tt.base, tt.last), tt.current)
			if tt.exact {
				if got != tt.want {
					t.Errorf("DecayedScore() = %v, want exactly %v", got, tt.want)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DecayedScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveScore(t *testing.T) {
	tests := []struct {
		name    string
		tier    types.Tier
		base    float64
		last    int64
		current int64
		want    float64
	}{
		{"constitutional doubles", types.TierConstitutional, 0.50, 0, 5, 1.0},
		{"critical boosted", types.TierCritical, 0.90, 0, 0, 1.35},
		{"important boosted", types.TierImportant, 0.70, 0, 0, 0.84},
		{"normal unboosted", types.TierNormal, 0.50, 0, 0, 0.50},
		{"temporary damped", types.TierTemporary, 0.30, 0, 0, 0.24},
		{"deprecated zeroed", types.TierDeprecated, 0.10, 0, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveScore(scoreItem(tt.tier, tt.base, tt.last), tt.current)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EffectiveScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecayStacksWithBoostOnlyAtRankTime(t *testing.T) {
	// A normal memory at base 0.50 left untouched for 5 turns decays
	// to about a third of its starting relevance; the same inputs on
	// a constitutional memory stay at exactly the base score because
	// the boost lives in ranking, not in decay.
	normal := DecayedScore(scoreItem(types.TierNormal, 0.50, 0), 5)
	if math.Abs(normal-0.16384) > 1e-9 {
		t.Errorf("normal decayed = %v, want 0.16384", normal)
	}

	constitutional := DecayedScore(scoreItem(types.TierConstitutional, 0.50, 0), 5)
	if constitutional != 0.50 {
		t.Errorf("constitutional decayed = %v, want exactly 0.50", constitutional)
	}
}

func TestRRFMergeVectorOnly(t *testing.T) {
	vec := []storage.VectorResult{
		{MemoryID: 1, SimilarityScore: 0.9},
		{MemoryID: 2, SimilarityScore: 0.8},
	}

	merged := rrfMerge(vec, nil, rrfK)
	if len(merged) != 2 {
		t.Fatalf("merged %d results, want 2", len(merged))
	}
	if merged[0].memoryID != 1 || merged[1].memoryID != 2 {
		t.Errorf("order = [%d %d], want [1 2]", merged[0].memoryID, merged[1].memoryID)
	}
	if got, want := merged[0].score, 1.0/61.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("top score = %v, want %v", got, want)
	}
	for _, m := range merged {
		if m.source != types.MatchVector {
			t.Errorf("source = %q, want vector", m.source)
		}
	}
	if merged[0].similarity != 0.9 {
		t.Errorf("similarity = %v, want 0.9", merged[0].similarity)
	}
}

func TestRRFMergeKeywordOnly(t *testing.T) {
	txt := []storage.TextResult{
		{MemoryID: 7, BM25Score: 0.6},
		{MemoryID: 8, BM25Score: 0.4},
	}

	merged := rrfMerge(nil, txt, rrfK)
	if len(merged) != 2 {
		t.Fatalf("merged %d results, want 2", len(merged))
	}
	if merged[0].memoryID != 7 {
		t.Errorf("top = %d, want 7", merged[0].memoryID)
	}
	for _, m := range merged {
		if m.source != types.MatchKeyword {
			t.Errorf("source = %q, want keyword", m.source)
		}
	}
}

func TestRRFMergeBothListsBeatSingleList(t *testing.T) {
	// Memory 1 tops the vector list only; memory 2 sits second in
	// both lists. Appearing in both lists must outweigh topping one.
	vec := []storage.VectorResult{
		{MemoryID: 1, SimilarityScore: 0.95},
		{MemoryID: 2, SimilarityScore: 0.80},
	}
	txt := []storage.TextResult{
		{MemoryID: 3, BM25Score: 0.7},
		{MemoryID: 2, BM25Score: 0.5},
	}

	merged := rrfMerge(vec, txt, rrfK)
	if len(merged) != 3 {
		t.Fatalf("merged %d results, want 3", len(merged))
	}
	if merged[0].memoryID != 2 {
		t.Errorf("top = %d, want 2 (present in both lists)", merged[0].memoryID)
	}
	if merged[0].source != types.MatchBoth {
		t.Errorf("source = %q, want both", merged[0].source)
	}
	want := 1.0/62.0 + 1.0/62.0
	if math.Abs(merged[0].score-want) > 1e-12 {
		t.Errorf("fused score = %v, want %v", merged[0].score, want)
	}
}

func TestRRFMergeTieBreaksByID(t *testing.T) {
	vec := []storage.VectorResult{{MemoryID: 9, SimilarityScore: 0.9}}
	txt := []storage.TextResult{{MemoryID: 4, BM25Score: 0.9}}

	merged := rrfMerge(vec, txt, rrfK)
	if len(merged) != 2 {
		t.Fatalf("merged %d results, want 2", len(merged))
	}
	// Both contribute 1/61; the lower ID wins the tie.
	if merged[0].memoryID != 4 || merged[1].memoryID != 9 {
		t.Errorf("order = [%d %d], want [4 9]", merged[0].memoryID, merged[1].memoryID)
	}
}

func TestRRFMergeDefaultsConstant(t *testing.T) {
	vec := []storage.VectorResult{{MemoryID: 1, SimilarityScore: 0.9}}

	withDefault := rrfMerge(vec, nil, 0)
	explicit := rrfMerge(vec, nil, rrfK)
	if withDefault[0].score != explicit[0].score {
		t.Errorf("k=0 score %v differs from k=%d score %v", withDefault[0].score, rrfK, explicit[0].score)
	}
}

func TestRRFMergeEmpty(t *testing.T) {
	if got := rrfMerge(nil, nil, rrfK); len(got) != 0 {
		t.Errorf("merged %d results from empty lists, want 0", len(got))
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short"); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}

	long := make([]rune, 0, 200)
	for i := 0; i < 200; i++ {
		long = append(long, 'x')
	}
	got := preview(string(long))
	if len([]rune(got)) != previewRunes+3 {
		t.Errorf("preview length = %d runes, want %d", len([]rune(got)), previewRunes+3)
	}
}
