package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config selects and parameterizes providers and the Service built on
// them. Unset fields fall back to environment variables and defaults,
// so a zero Config resolves a working (offline) system.
type Config struct {
	// Provider forces a specific provider instead of auto-detection.
	Provider string
	// Model overrides the primary provider's default model. Fallback
	// candidates always run their own defaults.
	Model string

	GeminiAPIKey string
	OpenAIAPIKey string
	OllamaHost   string

	CacheSize        int
	BatchDelay       time.Duration
	BatchConcurrency int
	MaxChunkTokens   int
	ValidateTimeout  time.Duration

	Retry  RetryConfig
	Health HealthConfig
}

func (c Config) providerOverride() string {
	if c.Provider != "" {
		return strings.ToLower(c.Provider)
	}
	return strings.ToLower(os.Getenv(EnvProvider))
}

func (c Config) modelOverride() string {
	if c.Model != "" {
		return c.Model
	}
	return os.Getenv(EnvModel)
}

func (c Config) geminiKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return os.Getenv(EnvGeminiAPIKey)
}

func (c Config) openaiKey() string {
	if c.OpenAIAPIKey != "" {
		return c.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

func (c Config) ollamaHostValue() string {
	if c.OllamaHost != "" {
		return c.OllamaHost
	}
	return os.Getenv(EnvOllamaHost)
}

// Candidate pairs a provider name with the reason it entered the
// fallback chain.
type Candidate struct {
	Name   string
	Reason string
}

// ResolveChain returns the ordered fallback chain:
//
//  1. If a provider is forced (config or ENGRAM_EMBEDDING_PROVIDER),
//     the chain is that single candidate; an explicit choice never
//     silently falls back.
//  2. Otherwise, every provider with an available credential, in
//     priority order: Gemini, OpenAI, Ollama.
//  3. Offline always last: the chain is never empty.
func ResolveChain(cfg Config) []Candidate {
	if forced := cfg.providerOverride(); forced != "" {
		return []Candidate{{Name: forced, Reason: "explicitly configured"}}
	}

	var chain []Candidate
	if cfg.geminiKey() != "" {
		chain = append(chain, Candidate{Name: ProviderGemini, Reason: EnvGeminiAPIKey + " set"})
	}
	if cfg.openaiKey() != "" {
		chain = append(chain, Candidate{Name: ProviderOpenAI, Reason: EnvOpenAIAPIKey + " set"})
	}
	if cfg.ollamaHostValue() != "" {
		chain = append(chain, Candidate{Name: ProviderOllama, Reason: EnvOllamaHost + " set"})
	}
	chain = append(chain, Candidate{Name: ProviderOffline, Reason: "fallback of last resort"})
	return chain
}

// Resolve returns the provider that would be tried first.
func Resolve(cfg Config) Candidate {
	return ResolveChain(cfg)[0]
}

// New constructs a provider by name. An empty model selects the
// provider's default. Cloud providers fail here when their credential
// is missing.
func New(ctx context.Context, name, model string, cfg Config) (Provider, error) {
	switch strings.ToLower(name) {
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.geminiKey(), model)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.openaiKey(), model)
	case ProviderOllama:
		return NewOllamaProvider(cfg.ollamaHostValue(), model)
	case ProviderOffline:
		return NewOfflineProvider(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}
