package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// OfflineProvider derives deterministic pseudo-embeddings from the
// text itself. It performs no I/O and never fails, which makes it the
// fallback of last resort and the provider for air-gapped use.
// Identical text always maps to the identical unit vector, so exact
// duplicates still cluster without a model behind them. Vectors are
// task-independent: a query matches a document with the same wording.
type OfflineProvider struct{}

// NewOfflineProvider creates the offline hash embedder.
func NewOfflineProvider() *OfflineProvider {
	return &OfflineProvider{}
}

func (l *OfflineProvider) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

// hashVector expands the text's SHA-256 digest into a unit vector by
// hashing counter blocks, eight components per block.
func hashVector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))

	var block [40]byte
	copy(block[:32], seed[:])

	vector := make([]float32, OfflineDimension)
	for i := 0; i < OfflineDimension; {
		binary.LittleEndian.PutUint64(block[32:], uint64(i))
		digest := sha256.Sum256(block[:])
		for j := 0; j+4 <= len(digest) && i < OfflineDimension; j += 4 {
			bits := binary.LittleEndian.Uint32(digest[j : j+4])
			vector[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
			i++
		}
	}
	return NormalizeVector(vector)
}

func (l *OfflineProvider) Validate(ctx context.Context) error {
	return nil
}

func (l *OfflineProvider) Name() string {
	return ProviderOffline
}

func (l *OfflineProvider) Model() string {
	return OfflineModel
}

func (l *OfflineProvider) Dimension() int {
	return OfflineDimension
}

func (l *OfflineProvider) Profile() Profile {
	return Profile{Provider: ProviderOffline, Model: OfflineModel, Dimension: OfflineDimension}
}

func (l *OfflineProvider) Close() error {
	return nil
}
