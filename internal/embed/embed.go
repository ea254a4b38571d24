// Package embed provides embedding providers for lecture-chunk retrieval.
//
// Two interchangeable strategies exist: a deterministic hash embedding
// that needs no external service, and a learned embedding served by an
// OpenAI-compatible /embeddings endpoint.
package embed

import (
	"context"
	"fmt"
	"sync"
)

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed creates one embedding per input text. All vectors are
	// L2-normalized so a dot product approximates cosine similarity.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int
}

// Config selects and parameterizes an embedding provider.
type Config struct {
	Provider       string // "hash" or "openai"
	BaseURL        string
	APIKey         string
	Model          string
	Dim            int
	TimeoutSeconds int
}

func (c Config) key() string {
	return c.Provider + "|" + c.Model + "|" + c.BaseURL
}

// Loader hands out the configured embedding provider. It holds one
// provider at a time; asking for a different configuration evicts the
// previous one. Check-and-initialize is mutex-guarded so concurrent
// requests cannot construct two providers.
type Loader struct {
	mu       sync.Mutex
	key      string
	provider Provider
}

// NewLoader creates an empty provider loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Get returns the provider for cfg, constructing it on first use or
// after a configuration change.
func (l *Loader) Get(cfg Config) (Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.provider != nil && l.key == cfg.key() {
		return l.provider, nil
	}

	var p Provider
	switch cfg.Provider {
	case "hash":
		p = NewHashProvider(cfg.Dim)
	case "openai":
		p = NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}

	l.provider = p
	l.key = cfg.key()
	return p, nil
}
