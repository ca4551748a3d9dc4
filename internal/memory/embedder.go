package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/axonworks/cortexd/internal/config"
)

const (
	providerAPI    = "api"
	providerOllama = "ollama"

	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultTimeoutMs     = 30000
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embedderClient struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	expectedDim int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder builds an OpenAI-compatible embeddings client from the
// memory config. Credentials fall back to the primary provider's.
func NewEmbedder(cfg *config.Config) Embedder {
	client := &embedderClient{
		provider:   providerAPI,
		httpClient: &http.Client{Timeout: defaultTimeoutMs * time.Millisecond},
	}
	if cfg == nil {
		return client
	}

	emb := cfg.Memory.Embedding
	if p := strings.ToLower(strings.TrimSpace(emb.Provider)); p != "" {
		client.provider = p
	}
	client.baseURL = firstNonEmpty(emb.BaseURL, cfg.Provider.BaseURL)
	client.apiKey = firstNonEmpty(emb.APIKey, cfg.Provider.APIKey)
	client.model = emb.Model
	client.expectedDim = emb.Dimension
	if emb.TimeoutMs > 0 {
		client.httpClient.Timeout = time.Duration(emb.TimeoutMs) * time.Millisecond
	}
	if client.provider == providerOllama && client.baseURL == "" {
		client.baseURL = defaultOllamaBaseURL
	}
	return client
}

func (c *embedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed: empty text")
	}
	if c.model == "" {
		return nil, fmt.Errorf("embed: missing embedding model")
	}

	baseURL, err := c.resolveBaseURL()
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: trimmed})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding in response")
	}
	vec := decoded.Data[0].Embedding
	if c.expectedDim > 0 && len(vec) != c.expectedDim {
		return nil, fmt.Errorf("embed: dimension mismatch: got %d want %d", len(vec), c.expectedDim)
	}
	return vec, nil
}

func (c *embedderClient) resolveBaseURL() (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	switch c.provider {
	case "", providerAPI:
		if baseURL == "" {
			return "", fmt.Errorf("missing embedding base url")
		}
		if c.apiKey == "" {
			return "", fmt.Errorf("missing embedding api key")
		}
		return baseURL, nil
	case providerOllama:
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return baseURL, nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %s", c.provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
