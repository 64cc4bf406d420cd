package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

// ollamaDimensions maps known Ollama embedding models to their output
// dimension.
var ollamaDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// OllamaProvider generates embeddings on a local Ollama instance.
type OllamaProvider struct {
	client *api.Client
	host   string
	model  string
	dim    int
}

// NewOllamaProvider creates an Ollama embedder against host. An empty
// host falls back to OLLAMA_HOST, then the standard local port; an
// empty model selects nomic-embed-text.
func NewOllamaProvider(host, model string) (*OllamaProvider, error) {
	if host == "" {
		host = os.Getenv(EnvOllamaHost)
	}
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	uri, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}

	dim, ok := ollamaDimensions[model]
	if !ok {
		dim = OllamaDimension
	}

	return &OllamaProvider{
		client: api.NewClient(uri, http.DefaultClient),
		host:   host,
		model:  model,
		dim:    dim,
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	// nomic models are trained with role prefixes on the input text.
	prefix := ollamaTaskPrefix(task)
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = prefix + text
	}

	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: input,
	})
	if err != nil {
		return nil, wrapOllamaError(err)
	}
	if err := checkVectors(ProviderOllama, resp.Embeddings, len(texts), p.dim); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func ollamaTaskPrefix(task Task) string {
	switch task {
	case TaskQuery:
		return "search_query: "
	case TaskClustering:
		return "clustering: "
	default:
		return "search_document: "
	}
}

// wrapOllamaError classifies client failures: HTTP statuses from the
// daemon (an unknown model surfaces as 404) versus connection errors
// (daemon not running), which are retryable.
func wrapOllamaError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return &ProviderError{
			Provider:   ProviderOllama,
			StatusCode: se.StatusCode,
			Permanent:  permanentStatus(se.StatusCode),
			Err:        err,
		}
	}
	return &ProviderError{Provider: ProviderOllama, Err: err}
}

func (p *OllamaProvider) Validate(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"ping"}, TaskDocument)
	return err
}

func (p *OllamaProvider) Name() string {
	return ProviderOllama
}

func (p *OllamaProvider) Model() string {
	return p.model
}

func (p *OllamaProvider) Dimension() int {
	return p.dim
}

func (p *OllamaProvider) Profile() Profile {
	return Profile{Provider: ProviderOllama, Model: p.model, Dimension: p.dim}
}

func (p *OllamaProvider) Close() error {
	return nil
}
