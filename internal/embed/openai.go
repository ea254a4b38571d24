package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider serves learned sentence embeddings from an
// OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	api   *openai.Client
	model string
	dim   int
}

// NewOpenAIProvider creates an embedding client for the configured endpoint.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.TimeoutSeconds > 0 {
		config.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &OpenAIProvider{
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
		dim:   cfg.Dim,
	}
}

// Dimensions returns the configured vector dimension.
func (p *OpenAIProvider) Dimensions() int {
	return p.dim
}

// Embed requests embeddings for the texts and normalizes the results.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API call: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		out[i] = Normalize(vec)
	}
	return out, nil
}
