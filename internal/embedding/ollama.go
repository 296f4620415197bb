package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/loomhq/loom/internal/httpx"
	"github.com/loomhq/loom/internal/providers"
)

// OllamaProvider embeds through a local Ollama daemon. Local, 768
// dimensions by default, batches of 64.
type OllamaProvider struct {
	cfg     Config
	client  *http.Client
	baseURL string
}

// NewOllamaProvider builds the adapter. Only the model is required; the
// daemon needs no API key.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "ollama_embedding", Message: "model is required"}
	}
	if cfg.BatchSize != 0 && (cfg.BatchSize < 1 || cfg.BatchSize > 64) {
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "ollama_embedding", Message: "batch_size must be in [1, 64]"}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg:     cfg,
		client:  httpx.NewClient(nil),
		baseURL: strings.TrimRight(base, "/"),
	}, nil
}

func (p *OllamaProvider) ProviderType() ProviderType { return TypeOllama }
func (p *OllamaProvider) DisplayName() string        { return "Ollama (local)" }
func (p *OllamaProvider) IsLocal() bool              { return true }
func (p *OllamaProvider) MaxBatchSize() int          { return 64 }

func (p *OllamaProvider) Dimension() int {
	if p.cfg.Dimension > 0 {
		return p.cfg.Dimension
	}
	return 768
}

// HealthCheck probes the daemon's version endpoint.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/version", nil)
	if err != nil {
		return &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "ollama_embedding", Cause: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return providers.WrapNetworkError("ollama_embedding", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return providers.MapHTTPStatus("ollama_embedding", resp.StatusCode, "")
	}
	return nil
}

// EmbedDocuments embeds a batch through /api/embed.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch("ollama_embedding", len(texts), p.MaxBatchSize()); err != nil {
		return nil, err
	}

	data, err := postJSON(ctx, p.client, "ollama_embedding", p.baseURL+"/api/embed", "", map[string]any{
		"model": p.cfg.Model,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	var wire struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "ollama_embedding", Cause: err}
	}
	return wire.Embeddings, nil
}

// EmbedQuery embeds one query; Ollama retrieval is symmetric.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "ollama_embedding", Message: "empty embedding response"}
	}
	return vecs[0], nil
}
