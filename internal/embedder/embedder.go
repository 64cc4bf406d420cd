package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Provider names and their default models.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderOffline = "offline"

	DefaultGeminiModel = "text-embedding-004"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	OfflineModel       = "hash-v1"

	GeminiDimension  = 768
	OpenAIDimension  = 1536
	OllamaDimension  = 768
	OfflineDimension = 384

	DefaultOllamaHost = "http://localhost:11434"

	// MaxBatchSize bounds a single provider call.
	MaxBatchSize = 100
)

// Environment variables consulted when explicit configuration is absent.
const (
	EnvProvider     = "ENGRAM_EMBEDDING_PROVIDER"
	EnvModel        = "ENGRAM_EMBEDDING_MODEL"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Common errors
var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrBatchTooLarge   = errors.New("batch size exceeds limit")
	ErrAPIKeyMissing   = errors.New("api key missing")
	ErrUnknownProvider = errors.New("unknown embedding provider")
	ErrInvalidModel    = errors.New("invalid model")
	ErrNoEmbedding     = errors.New("no provider could produce an embedding")
)

// Task selects how a provider conditions the embedding. Models that
// distinguish retrieval roles match better when documents and queries
// are embedded under their respective tasks.
type Task string

const (
	TaskDocument   Task = "document"
	TaskQuery      Task = "query"
	TaskClustering Task = "clustering"
)

// Profile identifies the backend that produced a vector. Vectors from
// different profiles are never comparable: each profile maps to its own
// vector space in storage.
type Profile struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (p Profile) String() string {
	return fmt.Sprintf("%s/%s (%d-dim)", p.Provider, p.Model, p.Dimension)
}

// IsZero reports whether the profile is unset.
func (p Profile) IsZero() bool {
	return p.Provider == ""
}

// Provider generates embeddings for batches of text. Implementations
// must return one vector per input, in input order.
type Provider interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)

	// Validate performs a minimal round trip to verify the provider is
	// usable. Callers bound it with a timeout.
	Validate(ctx context.Context) error

	// Name returns the provider name.
	Name() string

	// Model returns the model name.
	Model() string

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Profile returns the provider's identity for vector space routing.
	Profile() Profile

	// Close releases any resources held by the provider
	Close() error
}

// ProviderError carries enough context from a failed provider call to
// classify it for retry: permanent errors fail fast to the next
// candidate, everything else is retried until attempts run out.
type ProviderError struct {
	Provider   string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ExhaustionError reports that every candidate in the fallback chain
// failed to serve a request. Providers lists the candidates in the
// order they were tried; Failures carries one summary per candidate.
// It unwraps to ErrNoEmbedding, so errors.Is(err, ErrNoEmbedding)
// detects exhaustion without inspecting the type.
type ExhaustionError struct {
	Providers []string
	Failures  []string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNoEmbedding, strings.Join(e.Failures, "; "))
}

func (e *ExhaustionError) Unwrap() error {
	return ErrNoEmbedding
}

func (e *ExhaustionError) record(provider, failure string) {
	e.Providers = append(e.Providers, provider)
	e.Failures = append(e.Failures, failure)
}

// validateTexts rejects empty batches, blank entries, and calls that
// exceed the per-call batch limit.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d allowed", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrEmptyText, i)
		}
	}
	return nil
}

// checkVectors verifies a provider response: one vector per input, all
// with the declared dimension. A mismatch means the response cannot be
// stored in the provider's vector space.
func checkVectors(provider string, vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return &ProviderError{
			Provider: provider,
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(vectors), want),
		}
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return &ProviderError{
				Provider: provider,
				Err:      fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vec), dim),
			}
		}
	}
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
