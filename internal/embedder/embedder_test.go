package embedder

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestValidateTexts(t *testing.T) {
	big := make([]string, MaxBatchSize+1)
	for i := range big {
		big[i] = "text"
	}

	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{
			name:    "valid batch",
			texts:   []string{"text1", "text2", "text3"},
			wantErr: nil,
		},
		{
			name:    "single text",
			texts:   []string{"a"},
			wantErr: nil,
		},
		{
			name:    "empty batch",
			texts:   []string{},
			wantErr: ErrEmptyText,
		},
		{
			name:    "nil batch",
			texts:   nil,
			wantErr: ErrEmptyText,
		},
		{
			name:    "contains empty text",
			texts:   []string{"text1", "", "text3"},
			wantErr: ErrEmptyText,
		},
		{
			name:    "contains blank text",
			texts:   []string{"text1", "   \n\t", "text3"},
			wantErr: ErrEmptyText,
		},
		{
			name:    "over batch limit",
			texts:   big,
			wantErr: ErrBatchTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTexts(tt.texts)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateTexts() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateTexts() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTextsReportsIndex(t *testing.T) {
	err := validateTexts([]string{"ok", "ok", "  "})
	if err == nil {
		t.Fatal("Expected error for blank text")
	}
	if !strings.Contains(err.Error(), "index 2") {
		t.Errorf("Error %q does not name the offending index", err)
	}
}

func TestProfile(t *testing.T) {
	t.Run("string format", func(t *testing.T) {
		p := Profile{Provider: ProviderGemini, Model: DefaultGeminiModel, Dimension: 768}
		want := "gemini/text-embedding-004 (768-dim)"
		if got := p.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	})

	t.Run("zero value", func(t *testing.T) {
		var p Profile
		if !p.IsZero() {
			t.Error("Zero profile reported non-zero")
		}
		p.Provider = ProviderOffline
		if p.IsZero() {
			t.Error("Populated profile reported zero")
		}
	})

	t.Run("comparable", func(t *testing.T) {
		a := Profile{Provider: ProviderOllama, Model: DefaultOllamaModel, Dimension: 768}
		b := Profile{Provider: ProviderOllama, Model: DefaultOllamaModel, Dimension: 768}
		if a != b {
			t.Error("Identical profiles compared unequal")
		}
		b.Dimension = 1024
		if a == b {
			t.Error("Different dimensions compared equal")
		}
	})
}

func TestProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "with status code",
			err: &ProviderError{
				Provider:   ProviderOpenAI,
				StatusCode: 429,
				Err:        errors.New("rate limited"),
			},
			want: "openai: status 429: rate limited",
		},
		{
			name: "without status code",
			err: &ProviderError{
				Provider: ProviderOllama,
				Err:      errors.New("connection refused"),
			},
			want: "ollama: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("boom")
		err := fmt.Errorf("embed: %w", &ProviderError{Provider: ProviderGemini, Err: inner})

		var perr *ProviderError
		if !errors.As(err, &perr) {
			t.Fatal("errors.As failed to find ProviderError")
		}
		if !errors.Is(err, inner) {
			t.Error("errors.Is failed to reach wrapped cause")
		}
	})
}

func TestCheckVectors(t *testing.T) {
	vec := func(dim int) []float32 { return make([]float32, dim) }

	tests := []struct {
		name    string
		vectors [][]float32
		count   int
		dim     int
		wantErr bool
	}{
		{
			name:    "matching",
			vectors: [][]float32{vec(4), vec(4)},
			count:   2,
			dim:     4,
			wantErr: false,
		},
		{
			name:    "count mismatch",
			vectors: [][]float32{vec(4)},
			count:   2,
			dim:     4,
			wantErr: true,
		},
		{
			name:    "dimension mismatch",
			vectors: [][]float32{vec(4), vec(3)},
			count:   2,
			dim:     4,
			wantErr: true,
		},
		{
			name:    "empty expected",
			vectors: [][]float32{},
			count:   0,
			dim:     4,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkVectors(ProviderOffline, tt.vectors, tt.count, tt.dim)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkVectors() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var perr *ProviderError
				if !errors.As(err, &perr) {
					t.Errorf("checkVectors() error type = %T, want *ProviderError", err)
				}
			}
		})
	}
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		wantNorm float64
	}{
		{
			name:     "unit vector",
			input:    []float32{1.0, 0.0, 0.0},
			wantNorm: 1.0,
		},
		{
			name:     "needs normalization",
			input:    []float32{3.0, 4.0},
			wantNorm: 1.0,
		},
		{
			name:     "zero vector",
			input:    []float32{0.0, 0.0, 0.0},
			wantNorm: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)

			var sum float64
			for _, v := range result {
				sum += float64(v) * float64(v)
			}
			norm := math.Sqrt(sum)

			if math.Abs(norm-tt.wantNorm) > 0.0001 {
				t.Errorf("Normalized vector norm = %f, want %f", norm, tt.wantNorm)
			}
		})
	}
}
