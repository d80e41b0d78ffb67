package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalProvider embeds text offline by hashing its tokens into a fixed number of buckets.
// Texts sharing vocabulary score high cosine similarity, which is enough for
// offline use and deterministic tests.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new hashing embedder
func NewLocalProvider(dimension int, cache *Cache) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	model := DefaultLocalModel
	if dimension != LocalDimension {
		model = fmt.Sprintf("local-hash-%d", dimension)
	}
	return &LocalProvider{
		model:     model,
		dimension: dimension,
		cache:     cache,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := validateText(req.Text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.cache != nil {
		if emb, ok := l.cache.Get(l.model, req.Text); ok {
			return emb, nil
		}
	}

	vector := make([]float32, l.dimension)
	for _, token := range tokenize(req.Text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		// The high bit picks a sign so unrelated tokens tend to cancel out
		if sum&(1<<31) != 0 {
			vector[sum%uint32(l.dimension)] -= 1
		} else {
			vector[sum%uint32(l.dimension)] += 1
		}
	}

	emb := &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      ComputeHash(req.Text),
	}
	if l.cache != nil {
		l.cache.Put(l.model, req.Text, emb)
	}
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	embeddings, err := generateBatchSequential(ctx, l, req)
	if err != nil {
		return nil, err
	}
	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (l *LocalProvider) Ping(ctx context.Context) error {
	return nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
