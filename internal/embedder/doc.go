// Package embedder generates vector embeddings for memory records and search queries.
//
// Four providers are available:
//   - ollama: a local Ollama server (POST /api/embeddings)
//   - openai: any OpenAI-compatible /v1 endpoint, through langchaingo
//   - local: an offline hashing embedder, deterministic and dependency free
//   - none: disabled; every call reports the service as unavailable
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "ollama",
//	    BaseURL:   "http://localhost:11434",
//	    Model:     "nomic-embed-text",
//	    CacheSize: 1000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "how do we deploy to staging",
//	})
//
// # Availability
//
// Ping checks the backing service without generating anything. Provider
// failures wrap types.ErrServiceUnavailable so callers can degrade instead
// of failing:
//
//	if errors.Is(err, types.ErrServiceUnavailable) {
//	    // return an empty semantic phase
//	}
//
// # Caching
//
// Embeddings are cached in an LRU keyed by model and the SHA-256 of the text.
// Cached vectors are copied on read so callers may mutate them freely.
//
// # Retries
//
// Network failures and 5xx responses are retried with exponential backoff
// (3 attempts, 100ms doubling to at most 5s). Client errors such as an
// unknown model are returned immediately.
package embedder
