package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

var (
	// ErrInvalidRequest rejects empty texts and oversized batches before any network call
	ErrInvalidRequest = errors.New("invalid embedding request")
	// ErrUnknownProvider is returned by New for an unrecognized provider name
	ErrUnknownProvider = errors.New("unknown embedding provider")
	// ErrDisabled is the cause behind every call to the "none" provider
	ErrDisabled = errors.New("embeddings disabled")
)

// unavailable classifies err as a service outage for callers matching types.ErrServiceUnavailable
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
}

// Embedding is one vector together with the model that produced it
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // sha256 of the embedded text, stored as content_hash
}

func (e *Embedding) clone() *Embedding {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

// EmbeddingRequest asks for the embedding of one text
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override default model
}

// BatchEmbeddingRequest asks for the embeddings of several texts in order
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds one embedding per requested text
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns memory content and queries into vectors
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension, or 0 until the first vector is seen
	Dimension() int
	Provider() string
	// Model names the stored embeddings; empty when embeddings are disabled
	Model() string

	// Ping checks that the backing service is reachable
	Ping(ctx context.Context) error
	Close() error
}

// defaultCacheSize applies when NewCache gets a non-positive size
const defaultCacheSize = 10000

// Cache is an LRU of embeddings keyed by model and text hash. Providers may share
// one cache; entries of different models never collide.
type Cache struct {
	lru *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding up to size embeddings
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	l, _ := lru.New[string, *Embedding](size)
	return &Cache{lru: l}
}

// Get returns a copy of the cached embedding of text under model
func (c *Cache) Get(model, text string) (*Embedding, bool) {
	emb, ok := c.lru.Get(cacheKey(model, text))
	if !ok {
		return nil, false
	}
	return emb.clone(), true
}

// Put stores emb as the embedding of text under model
func (c *Cache) Put(model, text string, emb *Embedding) {
	c.lru.Add(cacheKey(model, text), emb.clone())
}

// Len returns the number of cached embeddings
func (c *Cache) Len() int {
	return c.lru.Len()
}

func cacheKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

// ComputeHash returns the hex sha256 of text, used as the embedding content hash
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidRequest)
	}
	return nil
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts", ErrInvalidRequest)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts exceeds the batch limit of %d", ErrInvalidRequest, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text %d is empty", ErrInvalidRequest, i)
		}
	}
	return nil
}
