package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const openAIBaseURL = "https://api.openai.com"

// openAIDimensions maps known OpenAI embedding models to their output
// dimension.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIProvider generates embeddings through the OpenAI embeddings
// endpoint. The API has no task parameter, so the task is ignored.
type OpenAIProvider struct {
	apiKey     string
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI embedder. An empty key falls
// back to OPENAI_API_KEY; an empty model selects text-embedding-3-small.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrAPIKeyMissing, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	dim, ok := openAIDimensions[model]
	if !ok {
		dim = OpenAIDimension
	}

	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		baseURL: openAIBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"input": texts,
		"model": o.model,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{
			Provider: ProviderOpenAI,
			Err:      fmt.Errorf("api call: %w", err),
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Provider:   ProviderOpenAI,
			StatusCode: resp.StatusCode,
			Permanent:  permanentStatus(resp.StatusCode),
			Err:        fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &ProviderError{
			Provider: ProviderOpenAI,
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}

	// Responses are placed by index, not list position.
	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, &ProviderError{
				Provider: ProviderOpenAI,
				Err:      fmt.Errorf("embedding index %d out of range", data.Index),
			}
		}
		vectors[data.Index] = data.Embedding
	}
	if err := checkVectors(ProviderOpenAI, vectors, len(texts), o.dim); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *OpenAIProvider) Validate(ctx context.Context) error {
	_, err := o.Embed(ctx, []string{"ping"}, TaskDocument)
	return err
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Dimension() int {
	return o.dim
}

func (o *OpenAIProvider) Profile() Profile {
	return Profile{Provider: ProviderOpenAI, Model: o.model, Dimension: o.dim}
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
