package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/loomhq/loom/internal/httpx"
	"github.com/loomhq/loom/internal/providers"
)

// qwenSupportedDims are the dimensions DashScope text embeddings accept.
var qwenSupportedDims = []int{512, 1024, 1536}

// QwenProvider embeds through the DashScope text-embedding API. Remote,
// 1024 dimensions by default, batches of 25.
//
// DashScope distinguishes call sites with a text_type of "query" or
// "document" (asymmetric retrieval): the same text embeds to different
// vectors in the two roles, so EmbedQuery does not delegate to
// EmbedDocuments.
type QwenProvider struct {
	cfg     Config
	client  *http.Client
	baseURL string
}

// NewQwenProvider builds and validates the adapter.
func NewQwenProvider(cfg Config) (*QwenProvider, error) {
	if err := validateRemote("qwen", cfg, 25, qwenSupportedDims); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	}
	return &QwenProvider{cfg: cfg, client: httpx.NewClient(nil), baseURL: strings.TrimRight(base, "/")}, nil
}

func (p *QwenProvider) ProviderType() ProviderType { return TypeQwen }
func (p *QwenProvider) DisplayName() string        { return "Qwen (DashScope)" }
func (p *QwenProvider) IsLocal() bool              { return false }
func (p *QwenProvider) MaxBatchSize() int          { return 25 }

func (p *QwenProvider) Dimension() int {
	if p.cfg.Dimension > 0 {
		return p.cfg.Dimension
	}
	return 1024
}

// HealthCheck embeds a one-word document.
func (p *QwenProvider) HealthCheck(ctx context.Context) error {
	_, err := p.embed(ctx, []string{"ping"}, "document")
	return err
}

// EmbedDocuments embeds a batch with text_type=document.
func (p *QwenProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch("qwen", len(texts), p.MaxBatchSize()); err != nil {
		return nil, err
	}
	return p.embed(ctx, texts, "document")
}

// EmbedQuery embeds one text with text_type=query.
func (p *QwenProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "qwen", Message: "empty embedding response"}
	}
	return vecs[0], nil
}

func (p *QwenProvider) embed(ctx context.Context, texts []string, textType string) ([][]float32, error) {
	parameters := map[string]any{"text_type": textType}
	if p.cfg.Dimension > 0 {
		parameters["dimension"] = p.cfg.Dimension
	}

	data, err := postJSON(ctx, p.client, "qwen", p.baseURL, p.cfg.APIKey, map[string]any{
		"model":      p.cfg.Model,
		"input":      map[string]any{"texts": texts},
		"parameters": parameters,
	})
	if err != nil {
		return nil, err
	}

	var wire struct {
		Output struct {
			Embeddings []struct {
				TextIndex int       `json:"text_index"`
				Embedding []float32 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "qwen", Cause: err}
	}

	// The service may return out of order; restore input order by index.
	sort.Slice(wire.Output.Embeddings, func(i, j int) bool {
		return wire.Output.Embeddings[i].TextIndex < wire.Output.Embeddings[j].TextIndex
	})

	vecs := make([][]float32, len(wire.Output.Embeddings))
	for i, e := range wire.Output.Embeddings {
		vecs[i] = e.Embedding
	}
	return vecs, nil
}
