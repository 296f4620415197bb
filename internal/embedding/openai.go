package embedding

import (
	"context"
	"errors"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loomhq/loom/internal/providers"
)

// openaiSupportedDims are the dimensions text-embedding-3 models accept.
var openaiSupportedDims = []int{256, 512, 1024, 1536, 3072}

// OpenAIProvider embeds through the OpenAI embeddings API. Remote, 1536
// dimensions by default, batches up to 2048.
type OpenAIProvider struct {
	cfg    Config
	client *openai.Client
}

// NewOpenAIProvider builds and validates the adapter.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if err := validateRemote("openai_embedding", cfg, 2048, openaiSupportedDims); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}, nil
}

func (p *OpenAIProvider) ProviderType() ProviderType { return TypeOpenAI }
func (p *OpenAIProvider) DisplayName() string        { return "OpenAI" }
func (p *OpenAIProvider) IsLocal() bool              { return false }
func (p *OpenAIProvider) MaxBatchSize() int          { return 2048 }

func (p *OpenAIProvider) Dimension() int {
	if p.cfg.Dimension > 0 {
		return p.cfg.Dimension
	}
	return 1536
}

// HealthCheck embeds a one-word document.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.EmbedDocuments(ctx, []string{"ping"})
	return err
}

// EmbedDocuments embeds a batch, restoring input order by the
// provider-supplied index.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch("openai_embedding", len(texts), p.MaxBatchSize()); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.cfg.Model),
	}
	if p.cfg.Dimension > 0 {
		req.Dimensions = p.cfg.Dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, e := range data {
		vecs[i] = e.Embedding
	}
	return vecs, nil
}

// EmbedQuery embeds one query; OpenAI retrieval is symmetric.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: "openai_embedding", Message: "empty embedding response"}
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPStatus("openai_embedding", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return providers.WrapNetworkError("openai_embedding", err)
}
