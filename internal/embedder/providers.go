package embedder

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderNone   = "none"

	// Default endpoints and models
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIURL   = "http://localhost:8080/v1"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-384"

	// Dimensions
	LocalDimension = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// DisabledProvider is used when embeddings are turned off. Every call reports the service as unavailable.
type DisabledProvider struct{}

func (DisabledProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return nil, unavailable(ErrDisabled)
}

func (DisabledProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return nil, unavailable(ErrDisabled)
}

func (DisabledProvider) Dimension() int   { return 0 }
func (DisabledProvider) Provider() string { return ProviderNone }
func (DisabledProvider) Model() string    { return "" }
func (DisabledProvider) Close() error     { return nil }

func (DisabledProvider) Ping(ctx context.Context) error {
	return unavailable(ErrDisabled)
}

// generateBatchSequential embeds texts one at a time through single-text providers
func generateBatchSequential(ctx context.Context, e Embedder, req BatchEmbeddingRequest) ([]*Embedding, error) {
	if err := validateBatch(req.Texts); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
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
