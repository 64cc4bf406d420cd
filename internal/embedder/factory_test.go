package embedder

import (
	"context"
	"errors"
	"os"
	"testing"
)

// resolveEnvVars are the variables chain resolution consults.
var resolveEnvVars = []string{EnvProvider, EnvModel, EnvGeminiAPIKey, EnvOpenAIAPIKey, EnvOllamaHost}

func clearResolveEnv(t *testing.T) {
	t.Helper()
	for _, key := range resolveEnvVars {
		clearEnv(t, key)
	}
}

func chainNames(chain []Candidate) []string {
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name
	}
	return names
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveChain(t *testing.T) {
	clearResolveEnv(t)

	tests := []struct {
		name      string
		cfg       Config
		env       map[string]string
		wantChain []string
	}{
		{
			name:      "no credentials falls back to offline",
			cfg:       Config{},
			wantChain: []string{ProviderOffline},
		},
		{
			name:      "gemini key present",
			env:       map[string]string{EnvGeminiAPIKey: "key"},
			wantChain: []string{ProviderGemini, ProviderOffline},
		},
		{
			name:      "openai key present",
			env:       map[string]string{EnvOpenAIAPIKey: "key"},
			wantChain: []string{ProviderOpenAI, ProviderOffline},
		},
		{
			name:      "ollama host present",
			env:       map[string]string{EnvOllamaHost: "http://localhost:11434"},
			wantChain: []string{ProviderOllama, ProviderOffline},
		},
		{
			name: "all credentials in precedence order",
			env: map[string]string{
				EnvGeminiAPIKey: "g",
				EnvOpenAIAPIKey: "o",
				EnvOllamaHost:   "http://localhost:11434",
			},
			wantChain: []string{ProviderGemini, ProviderOpenAI, ProviderOllama, ProviderOffline},
		},
		{
			name:      "config credentials work without env",
			cfg:       Config{OpenAIAPIKey: "key"},
			wantChain: []string{ProviderOpenAI, ProviderOffline},
		},
		{
			name: "forced provider is the whole chain",
			cfg:  Config{Provider: "ollama"},
			env: map[string]string{
				EnvGeminiAPIKey: "g",
				EnvOpenAIAPIKey: "o",
			},
			wantChain: []string{ProviderOllama},
		},
		{
			name: "forced via environment",
			env: map[string]string{
				EnvProvider:     "offline",
				EnvGeminiAPIKey: "g",
			},
			wantChain: []string{ProviderOffline},
		},
		{
			name:      "forced provider is lowercased",
			cfg:       Config{Provider: "OpenAI"},
			wantChain: []string{ProviderOpenAI},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range resolveEnvVars {
				os.Unsetenv(key)
			}
			for key, val := range tt.env {
				os.Setenv(key, val)
			}

			got := chainNames(ResolveChain(tt.cfg))
			if !equalNames(got, tt.wantChain) {
				t.Errorf("ResolveChain() = %v, want %v", got, tt.wantChain)
			}
		})
	}
}

func TestResolveChainReasons(t *testing.T) {
	clearResolveEnv(t)

	t.Run("forced", func(t *testing.T) {
		chain := ResolveChain(Config{Provider: "openai"})
		if chain[0].Reason != "explicitly configured" {
			t.Errorf("Reason = %q, want explicit configuration noted", chain[0].Reason)
		}
	})

	t.Run("credential detected", func(t *testing.T) {
		chain := ResolveChain(Config{GeminiAPIKey: "key"})
		if chain[0].Reason != EnvGeminiAPIKey+" set" {
			t.Errorf("Reason = %q, want %q", chain[0].Reason, EnvGeminiAPIKey+" set")
		}
	})

	t.Run("offline terminator", func(t *testing.T) {
		chain := ResolveChain(Config{})
		last := chain[len(chain)-1]
		if last.Name != ProviderOffline {
			t.Fatalf("Last candidate = %s, want %s", last.Name, ProviderOffline)
		}
		if last.Reason != "fallback of last resort" {
			t.Errorf("Reason = %q", last.Reason)
		}
	})
}

func TestResolve(t *testing.T) {
	clearResolveEnv(t)

	os.Setenv(EnvGeminiAPIKey, "g")
	os.Setenv(EnvOpenAIAPIKey, "o")
	if got := Resolve(Config{}); got.Name != ProviderGemini {
		t.Errorf("Resolve() = %s, want %s", got.Name, ProviderGemini)
	}

	if got := Resolve(Config{Provider: "offline"}); got.Name != ProviderOffline {
		t.Errorf("Resolve() with forced provider = %s, want %s", got.Name, ProviderOffline)
	}
}

func TestNewProvider(t *testing.T) {
	clearResolveEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		provider string
		model    string
		cfg      Config
		wantErr  bool
		wantName string
		wantDim  int
	}{
		{
			name:     "offline",
			provider: ProviderOffline,
			wantName: ProviderOffline,
			wantDim:  OfflineDimension,
		},
		{
			name:     "offline case insensitive",
			provider: "OFFLINE",
			wantName: ProviderOffline,
			wantDim:  OfflineDimension,
		},
		{
			name:     "openai with key",
			provider: ProviderOpenAI,
			cfg:      Config{OpenAIAPIKey: "test-key"},
			wantName: ProviderOpenAI,
			wantDim:  OpenAIDimension,
		},
		{
			name:     "openai with model override",
			provider: ProviderOpenAI,
			model:    "text-embedding-3-large",
			cfg:      Config{OpenAIAPIKey: "test-key"},
			wantName: ProviderOpenAI,
			wantDim:  3072,
		},
		{
			name:     "openai without key",
			provider: ProviderOpenAI,
			wantErr:  true,
		},
		{
			name:     "gemini without key",
			provider: ProviderGemini,
			wantErr:  true,
		},
		{
			name:     "ollama with default host",
			provider: ProviderOllama,
			wantName: ProviderOllama,
			wantDim:  OllamaDimension,
		},
		{
			name:     "unknown provider",
			provider: "cohere",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(ctx, tt.provider, tt.model, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer p.Close()

			if p.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", p.Name(), tt.wantName)
			}
			if p.Dimension() != tt.wantDim {
				t.Errorf("Dimension() = %d, want %d", p.Dimension(), tt.wantDim)
			}
		})
	}

	t.Run("unknown provider error is typed", func(t *testing.T) {
		_, err := New(ctx, "cohere", "", Config{})
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("New() error = %v, want ErrUnknownProvider", err)
		}
	})
}

func TestConfigEnvFallbacks(t *testing.T) {
	clearResolveEnv(t)

	t.Run("config wins over environment", func(t *testing.T) {
		os.Setenv(EnvProvider, "gemini")
		os.Setenv(EnvModel, "env-model")
		os.Setenv(EnvOpenAIAPIKey, "env-key")
		os.Setenv(EnvOllamaHost, "http://env:11434")

		cfg := Config{
			Provider:     "Ollama",
			Model:        "cfg-model",
			OpenAIAPIKey: "cfg-key",
			OllamaHost:   "http://cfg:11434",
		}
		if got := cfg.providerOverride(); got != "ollama" {
			t.Errorf("providerOverride() = %q, want ollama", got)
		}
		if got := cfg.modelOverride(); got != "cfg-model" {
			t.Errorf("modelOverride() = %q, want cfg-model", got)
		}
		if got := cfg.openaiKey(); got != "cfg-key" {
			t.Errorf("openaiKey() = %q, want cfg-key", got)
		}
		if got := cfg.ollamaHostValue(); got != "http://cfg:11434" {
			t.Errorf("ollamaHostValue() = %q", got)
		}
	})

	t.Run("environment fills empty config", func(t *testing.T) {
		os.Setenv(EnvProvider, "GEMINI")
		os.Setenv(EnvGeminiAPIKey, "env-gem")

		var cfg Config
		if got := cfg.providerOverride(); got != "gemini" {
			t.Errorf("providerOverride() = %q, want gemini (lowercased)", got)
		}
		if got := cfg.geminiKey(); got != "env-gem" {
			t.Errorf("geminiKey() = %q, want env-gem", got)
		}
	})
}
