package expander

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// Generator produces text for a prompt. Implementations must honour ctx deadlines.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"

	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
	DefaultOpenAIURL   = "http://localhost:8080/v1"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// ErrDisabled is returned by the disabled generator
var ErrDisabled = errors.New("query expansion disabled")

// GeneratorConfig selects and configures a Generator
type GeneratorConfig struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// NewGenerator builds the generator named by cfg.Provider
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model, client), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, client)
	case ProviderNone, "":
		return disabledGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// OllamaGenerator calls Ollama's /api/generate endpoint with JSON output requested
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaGenerator(baseURL, model string, client *http.Client) *OllamaGenerator {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OllamaGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: client,
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: generate status %d: %s", types.ErrServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode generate response: %w", types.ErrParseFailure, err)
	}
	return out.Response, nil
}

func (g *OllamaGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama status %d", types.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (g *OllamaGenerator) Model() string {
	return g.model
}

// OpenAIGenerator uses any OpenAI-compatible chat endpoint through langchaingo
type OpenAIGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	client     llms.Model
	httpClient *http.Client
}

func NewOpenAIGenerator(baseURL, apiKey, model string, httpClient *http.Client) (*OpenAIGenerator, error) {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	// Local OpenAI-compatible services accept any token
	if apiKey == "" {
		apiKey = "none"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		client:     client,
		httpClient: httpClient,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.2), llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Content, nil
}

func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: models endpoint status %d", types.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (g *OpenAIGenerator) Model() string {
	return g.model
}

type disabledGenerator struct{}

func (disabledGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("%w: %w", types.ErrServiceUnavailable, ErrDisabled)
}

func (disabledGenerator) Ping(ctx context.Context) error {
	return fmt.Errorf("%w: %w", types.ErrServiceUnavailable, ErrDisabled)
}

func (disabledGenerator) Model() string { return "" }
