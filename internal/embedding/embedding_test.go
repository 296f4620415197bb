package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/providers"
)

func TestRemoteValidationRequiresAPIKey(t *testing.T) {
	_, err := NewQwenProvider(Config{Type: TypeQwen, Model: "text-embedding-v3"})
	require.Error(t, err)
	assert.Equal(t, providers.KindInvalidConfig, providers.KindOf(err))
}

func TestRemoteValidationRequiresModel(t *testing.T) {
	_, err := NewGlmProvider(Config{Type: TypeGlm, APIKey: "k"})
	require.Error(t, err)
	assert.Equal(t, providers.KindInvalidConfig, providers.KindOf(err))
}

func TestValidationRejectsUnsupportedDimension(t *testing.T) {
	_, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m", Dimension: 333})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestValidationRejectsBatchSizeOutOfRange(t *testing.T) {
	_, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m", BatchSize: 26})
	require.Error(t, err)
}

func TestDefaultsPerProvider(t *testing.T) {
	qwen, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 1024, qwen.Dimension())
	assert.Equal(t, 25, qwen.MaxBatchSize())
	assert.False(t, qwen.IsLocal())

	glm, err := NewGlmProvider(Config{Type: TypeGlm, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 2048, glm.Dimension())
	assert.Equal(t, 64, glm.MaxBatchSize())

	oa, err := NewOpenAIProvider(Config{Type: TypeOpenAI, APIKey: "k", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 1536, oa.Dimension())
	assert.Equal(t, 2048, oa.MaxBatchSize())

	ollama, err := NewOllamaProvider(Config{Type: TypeOllama, Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, 768, ollama.Dimension())
	assert.True(t, ollama.IsLocal())

	tfidf := NewTfIdfProvider()
	assert.True(t, tfidf.IsLocal())
	assert.Equal(t, 1000, tfidf.MaxBatchSize())
}

func TestBatchLimitRejectedBeforeTransmission(t *testing.T) {
	qwen, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m",
		BaseURL: "http://127.0.0.1:1"}) // unreachable: must not be contacted
	require.NoError(t, err)

	texts := make([]string, 26)
	for i := range texts {
		texts[i] = "x"
	}
	_, err = qwen.EmbedDocuments(context.Background(), texts)
	require.Error(t, err)
	assert.Equal(t, providers.KindBatchSizeLimitExceeded, providers.KindOf(err))
}

func TestQwenSortsByProviderIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Parameters map[string]any `json:"parameters"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		// Reply out of order; the client must restore input order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"embeddings": []map[string]any{
					{"text_index": 1, "embedding": []float32{0, 1}},
					{"text_index": 0, "embedding": []float32{1, 0}},
				},
			},
		})
	}))
	defer server.Close()

	qwen, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	vecs, err := qwen.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestQwenAsymmetricTextType(t *testing.T) {
	var textTypes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Parameters struct {
				TextType string `json:"text_type"`
			} `json:"parameters"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		textTypes = append(textTypes, req.Parameters.TextType)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"embeddings": []map[string]any{{"text_index": 0, "embedding": []float32{1}}},
			},
		})
	}))
	defer server.Close()

	qwen, err := NewQwenProvider(Config{Type: TypeQwen, APIKey: "k", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = qwen.EmbedDocuments(context.Background(), []string{"doc"})
	require.NoError(t, err)
	_, err = qwen.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, []string{"document", "query"}, textTypes)
}

func TestGlmOmitsDefaultDimension(t *testing.T) {
	var sawDimensions []bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, has := body["dimensions"]
		sawDimensions = append(sawDimensions, has)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1}}},
		})
	}))
	defer server.Close()

	defaultDim, err := NewGlmProvider(Config{Type: TypeGlm, APIKey: "k", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = defaultDim.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)

	customDim, err := NewGlmProvider(Config{Type: TypeGlm, APIKey: "k", Model: "m", BaseURL: server.URL, Dimension: 512})
	require.NoError(t, err)
	_, err = customDim.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, sawDimensions)
}

func TestGlmAuthErrorMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	glm, err := NewGlmProvider(Config{Type: TypeGlm, APIKey: "bad", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = glm.EmbedDocuments(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, providers.KindAuthenticationFailed, providers.KindOf(err))
	assert.False(t, providers.IsRetryable(err))
}

func TestTfIdfDeterministicAndNormalized(t *testing.T) {
	p := NewTfIdfProvider()
	ctx := context.Background()

	vecs, err := p.EmbedDocuments(ctx, []string{"the quick brown fox", "the quick brown fox"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestFactorySelectsProvider(t *testing.T) {
	p, err := New(Config{Type: TypeTfIdf})
	require.NoError(t, err)
	assert.Equal(t, TypeTfIdf, p.ProviderType())

	_, err = New(Config{Type: "bogus"})
	require.Error(t, err)
}
