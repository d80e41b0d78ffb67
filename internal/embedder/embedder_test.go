package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
)

func TestComputeHash(t *testing.T) {
	// sha256 of "hello world"
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := ComputeHash("hello world"); got != want {
		t.Errorf("ComputeHash() = %s, want %s", got, want)
	}
	if ComputeHash("a") == ComputeHash("b") {
		t.Error("different texts should hash differently")
	}
}

func TestValidation(t *testing.T) {
	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "x"
	}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "text", err: validateText("memory"), wantErr: false},
		{name: "empty text", err: validateText(""), wantErr: true},
		{name: "batch", err: validateBatch([]string{"a", "b"}), wantErr: false},
		{name: "empty batch", err: validateBatch(nil), wantErr: true},
		{name: "empty member", err: validateBatch([]string{"a", ""}), wantErr: true},
		{name: "over limit", err: validateBatch(tooMany), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", tt.err, tt.wantErr)
			}
			if tt.err != nil && !errors.Is(tt.err, ErrInvalidRequest) {
				t.Errorf("error %v should wrap ErrInvalidRequest", tt.err)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("scoped by model", func(t *testing.T) {
		cache := NewCache(10)
		cache.Put("model-a", "deploy notes", &Embedding{Vector: []float32{1, 2}, Model: "model-a"})

		if _, ok := cache.Get("model-b", "deploy notes"); ok {
			t.Error("entry of model-a must not be returned for model-b")
		}
		got, ok := cache.Get("model-a", "deploy notes")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if got.Model != "model-a" || len(got.Vector) != 2 {
			t.Errorf("unexpected entry %+v", got)
		}
	})

	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(10)
		stored := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Put("m", "text", stored)
		stored.Vector[0] = 99

		got, _ := cache.Get("m", "text")
		got.Vector[1] = 42
		again, _ := cache.Get("m", "text")
		if again.Vector[0] != 1 || again.Vector[1] != 2 {
			t.Errorf("cached vector was mutated: %v", again.Vector)
		}
	})

	t.Run("least recently used is evicted", func(t *testing.T) {
		cache := NewCache(2)
		cache.Put("m", "one", &Embedding{})
		cache.Put("m", "two", &Embedding{})
		cache.Get("m", "one")
		cache.Put("m", "three", &Embedding{})

		if cache.Len() != 2 {
			t.Errorf("Len() = %d, want 2", cache.Len())
		}
		if _, ok := cache.Get("m", "two"); ok {
			t.Error("expected least recently used entry to be evicted")
		}
		if _, ok := cache.Get("m", "one"); !ok {
			t.Error("recently read entry should survive")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					text := fmt.Sprintf("text-%d-%d", id, j)
					cache.Put("m", text, &Embedding{Vector: []float32{float32(j)}})
					cache.Get("m", text)
				}
			}(i)
		}
		wg.Wait()
		if cache.Len() == 0 {
			t.Error("cache is empty after concurrent writes")
		}
	})
}

func TestLocalProviderUsesSharedCache(t *testing.T) {
	cache := NewCache(10)
	small := NewLocalProvider(8, cache)
	large := NewLocalProvider(16, cache)

	a, err := small.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "shared text"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := large.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "shared text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Vector) != 8 || len(b.Vector) != 16 {
		t.Errorf("dimensions = %d/%d, want 8/16", len(a.Vector), len(b.Vector))
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want one entry per model", cache.Len())
	}
	if !strings.HasPrefix(small.Model(), "local-hash-") {
		t.Errorf("Model() = %s", small.Model())
	}
}

func TestLocalProvider(t *testing.T) {
	cache := NewCache(10)
	provider := NewLocalProvider(0, cache)
	defer provider.Close()

	t.Run("provider metadata", func(t *testing.T) {
		if provider.Provider() != ProviderLocal {
			t.Errorf("Provider() = %s, want %s", provider.Provider(), ProviderLocal)
		}
		if provider.Dimension() != LocalDimension {
			t.Errorf("Dimension() = %d, want %d", provider.Dimension(), LocalDimension)
		}
		if provider.Model() != DefaultLocalModel {
			t.Errorf("Model() = %s, want %s", provider.Model(), DefaultLocalModel)
		}
		if err := provider.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("single embedding", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "deploy pipeline notes"})
		if err != nil {
			t.Fatalf("GenerateEmbedding() error = %v", err)
		}
		if len(emb.Vector) != LocalDimension {
			t.Errorf("Vector dimension = %d, want %d", len(emb.Vector), LocalDimension)
		}
		if emb.Hash != ComputeHash("deploy pipeline notes") {
			t.Errorf("Hash = %s, want content hash", emb.Hash)
		}
		if norm := vectorNorm(emb.Vector); math.Abs(norm-1) > 1e-5 {
			t.Errorf("norm = %f, want 1", norm)
		}
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		ctx := context.Background()
		a, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "kubernetes deploy rollout"})
		b, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Kubernetes deploy"})
		c, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "banana bread recipe"})

		related := dot(a.Vector, b.Vector)
		unrelated := dot(a.Vector, c.Vector)
		if related <= unrelated {
			t.Errorf("related similarity %f should exceed unrelated %f", related, unrelated)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		other := NewLocalProvider(0, nil)
		ctx := context.Background()
		a, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
		b, _ := other.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
		for i := range a.Vector {
			if a.Vector[i] != b.Vector[i] {
				t.Fatalf("vectors differ at index %d", i)
			}
		}
	})

	t.Run("batch embedding", func(t *testing.T) {
		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
			Texts: []string{"text1", "text2", "text3"},
		})
		if err != nil {
			t.Fatalf("GenerateBatch() error = %v", err)
		}
		if len(resp.Embeddings) != 3 {
			t.Errorf("Got %d embeddings, want 3", len(resp.Embeddings))
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		ctx := context.Background()
		if _, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""}); err == nil {
			t.Error("Expected error for empty text")
		}
		if _, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{}}); err == nil {
			t.Error("Expected error for empty batch")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "uncached text"}); err == nil {
			t.Error("Expected error for cancelled context")
		}
	})
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		wantNorm float64
	}{
		{name: "unit vector", input: []float32{1.0, 0.0, 0.0}, wantNorm: 1.0},
		{name: "needs normalization", input: []float32{3.0, 4.0}, wantNorm: 1.0},
		{name: "zero vector", input: []float32{0.0, 0.0, 0.0}, wantNorm: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			norm := vectorNorm(NormalizeVector(tt.input))
			if math.Abs(norm-tt.wantNorm) > 1e-4 {
				t.Errorf("Normalized vector norm = %f, want %f", norm, tt.wantNorm)
			}
		})
	}
}

func vectorNorm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
