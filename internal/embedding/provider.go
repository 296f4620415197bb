// Package embedding provides the pluggable embedding subsystem: a common
// provider interface, a local TF-IDF implementation, and remote adapters
// for Ollama, Qwen/DashScope, GLM/ZhipuAI, and OpenAI.
package embedding

import (
	"context"
	"fmt"

	"github.com/loomhq/loom/internal/providers"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	TypeTfIdf  ProviderType = "tfidf"
	TypeOllama ProviderType = "ollama"
	TypeQwen   ProviderType = "qwen"
	TypeGlm    ProviderType = "glm"
	TypeOpenAI ProviderType = "openai"
)

// Provider computes embeddings. Implementations are safe for concurrent
// use; Go callers downcast with a type assertion where a concrete
// provider is needed.
//
// EmbedQuery defaults to embedding the text as a document, but providers
// supporting asymmetric retrieval override it with a query-role call that
// may produce a different vector for the same text.
type Provider interface {
	// EmbedDocuments embeds a batch of document texts, preserving input
	// order. Batches larger than MaxBatchSize are rejected before
	// transmission.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds one retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector width this provider produces.
	Dimension() int

	// HealthCheck verifies connectivity and credentials.
	HealthCheck(ctx context.Context) error

	// IsLocal reports whether embedding happens without a network call.
	IsLocal() bool

	// MaxBatchSize is the largest EmbedDocuments batch accepted.
	MaxBatchSize() int

	ProviderType() ProviderType
	DisplayName() string
}

// Config configures one embedding provider instance.
type Config struct {
	Type      ProviderType `json:"type" yaml:"type"`
	APIKey    string       `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model     string       `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL   string       `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Dimension int          `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	BatchSize int          `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// New constructs the provider for a config, applying uniform validation.
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case TypeTfIdf:
		return NewTfIdfProvider(), nil
	case TypeOllama:
		return NewOllamaProvider(cfg)
	case TypeQwen:
		return NewQwenProvider(cfg)
	case TypeGlm:
		return NewGlmProvider(cfg)
	case TypeOpenAI:
		return NewOpenAIProvider(cfg)
	default:
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "embedding", Message: fmt.Sprintf("unknown provider type %q", cfg.Type)}
	}
}

// validateRemote applies the uniform remote-provider rules: api_key
// present, model non-empty, batch size within [1, max], and the
// requested dimension in the supported list when one exists.
func validateRemote(component string, cfg Config, maxBatch int, supportedDims []int) error {
	if cfg.APIKey == "" {
		return &providers.CoreError{Kind: providers.KindInvalidConfig, Component: component, Message: "api_key is required"}
	}
	if cfg.Model == "" {
		return &providers.CoreError{Kind: providers.KindInvalidConfig, Component: component, Message: "model is required"}
	}
	if cfg.BatchSize != 0 && (cfg.BatchSize < 1 || cfg.BatchSize > maxBatch) {
		return &providers.CoreError{Kind: providers.KindInvalidConfig, Component: component,
			Message: fmt.Sprintf("batch_size must be in [1, %d]", maxBatch)}
	}
	if cfg.Dimension != 0 && len(supportedDims) > 0 {
		ok := false
		for _, d := range supportedDims {
			if d == cfg.Dimension {
				ok = true
				break
			}
		}
		if !ok {
			return &providers.CoreError{Kind: providers.KindInvalidConfig, Component: component,
				Message: fmt.Sprintf("dimension %d not supported; valid: %v", cfg.Dimension, supportedDims)}
		}
	}
	return nil
}

// checkBatch rejects oversize batches before any network traffic.
func checkBatch(component string, requested, max int) error {
	if requested > max {
		return &providers.CoreError{
			Kind:      providers.KindBatchSizeLimitExceeded,
			Component: component,
			Message:   fmt.Sprintf("batch size %d exceeds maximum %d", requested, max),
		}
	}
	return nil
}
