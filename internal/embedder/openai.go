package embedder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider implements Embedder against any OpenAI-compatible /v1 endpoint
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	embedder   embeddings.Embedder
	httpClient *http.Client
	cache      *Cache
	dimension  atomic.Int64
}

// NewOpenAIProvider creates a new OpenAI-compatible embedder.
// Local services that don't require authentication accept any token.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client, cache *Cache) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if apiKey == "" {
		apiKey = "none"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(DefaultBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &OpenAIProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		embedder:   embedder,
		httpClient: httpClient,
		cache:      cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := validateText(req.Text); err != nil {
		return nil, err
	}

	if o.cache != nil {
		if emb, ok := o.cache.Get(o.model, req.Text); ok {
			return emb, nil
		}
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, unavailable(errors.New("openai embeddings: empty response"))
	}
	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := validateBatch(req.Texts); err != nil {
		return nil, err
	}

	vectors, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([][]float32, error) {
		return o.embedder.EmbedDocuments(ctx, req.Texts)
	})
	if err != nil {
		return nil, unavailable(fmt.Errorf("openai embeddings: %w", err))
	}
	if len(vectors) != len(req.Texts) {
		return nil, unavailable(fmt.Errorf("openai embeddings: got %d vectors for %d texts", len(vectors), len(req.Texts)))
	}

	result := make([]*Embedding, len(vectors))
	for i, vector := range vectors {
		emb := &Embedding{
			Vector:    vector,
			Dimension: len(vector),
			Provider:  ProviderOpenAI,
			Model:     o.model,
			Hash:      ComputeHash(req.Texts[i]),
		}
		if o.cache != nil {
			o.cache.Put(o.model, req.Texts[i], emb)
		}
		result[i] = emb
	}
	if len(result) > 0 {
		o.dimension.Store(int64(result[0].Dimension))
	}

	return &BatchEmbeddingResponse{
		Embeddings: result,
		Provider:   ProviderOpenAI,
		Model:      o.model,
	}, nil
}

// Ping lists models, which every OpenAI-compatible server exposes
func (o *OpenAIProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return unavailable(err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return unavailable(fmt.Errorf("models endpoint status %d", resp.StatusCode))
	}
	return nil
}

func (o *OpenAIProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
