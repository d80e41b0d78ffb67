package embedder

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // ollama, openai, local or none
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int // local provider only
	CacheSize int
	Timeout   time.Duration
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, httpClient, cache), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache), nil
	case ProviderNone, "":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnknownProvider, cfg.Provider)
	}
}
