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

// glmSupportedDims are the dimensions ZhipuAI embeddings accept.
var glmSupportedDims = []int{256, 512, 1024, 2048}

// glmDefaultDimension is the server-side default; the dimensions field
// is omitted from requests when it applies.
const glmDefaultDimension = 2048

// GlmProvider embeds through the ZhipuAI (GLM) embeddings API. Remote,
// 2048 dimensions by default, batches of 64.
type GlmProvider struct {
	cfg     Config
	client  *http.Client
	baseURL string
}

// NewGlmProvider builds and validates the adapter.
func NewGlmProvider(cfg Config) (*GlmProvider, error) {
	if err := validateRemote("glm", cfg, 64, glmSupportedDims); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://open.bigmodel.cn/api/paas/v4/embeddings"
	}
	return &GlmProvider{cfg: cfg, client: httpx.NewClient(nil), baseURL: strings.TrimRight(base, "/")}, nil
}

func (p *GlmProvider) ProviderType() ProviderType { return TypeGlm }
func (p *GlmProvider) DisplayName() string        { return "GLM (ZhipuAI)" }
func (p *GlmProvider) IsLocal() bool              { return false }
func (p *GlmProvider) MaxBatchSize() int          { return 64 }

func (p *GlmProvider) Dimension() int {
	if p.cfg.Dimension > 0 {
		return p.cfg.Dimension
	}
	return glmDefaultDimension
}

// HealthCheck embeds a one-word document.
func (p *GlmProvider) HealthCheck(ctx context.Context) error {
	_, err := p.embed(ctx, []string{"ping"})
	return err
}

// EmbedDocuments embeds a batch, preserving input order by the
// provider-supplied index.
func (p *GlmProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch("glm", len(texts), p.MaxBatchSize()); err != nil {
		return nil, err
	}
	return p.embed(ctx, texts)
}

// EmbedQuery embeds one query; GLM retrieval is symmetric.
func (p *GlmProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "glm", Message: "empty embedding response"}
	}
	return vecs[0], nil
}

func (p *GlmProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]any{
		"model": p.cfg.Model,
		"input": texts,
	}
	// Omit dimensions when the default applies.
	if p.cfg.Dimension > 0 && p.cfg.Dimension != glmDefaultDimension {
		body["dimensions"] = p.cfg.Dimension
	}

	data, err := postJSON(ctx, p.client, "glm", p.baseURL, p.cfg.APIKey, body)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "glm", Cause: err}
	}

	sort.Slice(wire.Data, func(i, j int) bool { return wire.Data[i].Index < wire.Data[j].Index })

	vecs := make([][]float32, len(wire.Data))
	for i, e := range wire.Data {
		vecs[i] = e.Embedding
	}
	return vecs, nil
}
