package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// geminiDimensions maps known Gemini embedding models to their output
// dimension.
var geminiDimensions = map[string]int{
	"text-embedding-004": 768,
	"embedding-001":      768,
}

// GeminiProvider generates embeddings through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiProvider creates a Gemini embedder. An empty key falls back
// to GEMINI_API_KEY; an empty model selects text-embedding-004.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvGeminiAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrAPIKeyMissing, EnvGeminiAPIKey)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	dim, ok := geminiDimensions[model]
	if !ok {
		dim = GeminiDimension
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		dim:    dim,
	}, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	em := g.client.EmbeddingModel(g.model)
	em.TaskType = geminiTaskType(task)

	// Use batch API for consistency
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, wrapGeminiError(err)
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, &ProviderError{
				Provider: ProviderGemini,
				Err:      fmt.Errorf("missing embedding at index %d", i),
			}
		}
		vectors[i] = emb.Values
	}
	if err := checkVectors(ProviderGemini, vectors, len(texts), g.dim); err != nil {
		return nil, err
	}
	return vectors, nil
}

// geminiTaskType maps embedding tasks onto the API's task types, which
// condition the model for retrieval asymmetry.
func geminiTaskType(task Task) genai.TaskType {
	switch task {
	case TaskQuery:
		return genai.TaskTypeRetrievalQuery
	case TaskClustering:
		return genai.TaskTypeClustering
	default:
		return genai.TaskTypeRetrievalDocument
	}
}

// wrapGeminiError classifies API failures. The SDK surfaces errors
// both as googleapi errors carrying HTTP statuses and as gRPC status
// codes, depending on the transport path.
func wrapGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ProviderError{
			Provider:   ProviderGemini,
			StatusCode: gerr.Code,
			Permanent:  permanentStatus(gerr.Code),
			Err:        err,
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound:
			return &ProviderError{Provider: ProviderGemini, Permanent: true, Err: err}
		}
	}

	return &ProviderError{Provider: ProviderGemini, Err: err}
}

func (g *GeminiProvider) Validate(ctx context.Context) error {
	_, err := g.Embed(ctx, []string{"ping"}, TaskDocument)
	return err
}

func (g *GeminiProvider) Name() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.model
}

func (g *GeminiProvider) Dimension() int {
	return g.dim
}

func (g *GeminiProvider) Profile() Profile {
	return Profile{Provider: ProviderGemini, Model: g.model, Dimension: g.dim}
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
