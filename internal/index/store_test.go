package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/db"
	"github.com/loomhq/loom/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	handle, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return NewStore(handle)
}

const project = "/work/demo"

func TestQuerySymbolsLike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{
		Path: "api/user.go", Language: "go",
		Symbols: []models.SymbolInfo{
			{Name: "UserController", Kind: models.SymbolStruct, Line: 10},
			{Name: "handle_request", Kind: models.SymbolFunction, Line: 42},
		},
	}, "hash1"))
	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{
		Path: "api/admin.go", Language: "go",
		Symbols: []models.SymbolInfo{
			{Name: "AdminController", Kind: models.SymbolStruct, Line: 5},
		},
	}, "hash2"))

	matches, err := s.QuerySymbols(ctx, project, "%Controller%")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	names := []string{matches[0].Symbol.Name, matches[1].Symbol.Name}
	assert.ElementsMatch(t, []string{"UserController", "AdminController"}, names)
}

func TestUpsertReplacesSymbolSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := models.FileInventoryItem{
		Path:    "svc/a.go",
		Symbols: []models.SymbolInfo{{Name: "Old", Kind: models.SymbolFunction, Line: 1}},
	}
	require.NoError(t, s.UpsertFileIndex(ctx, project, item, "h1"))

	item.Symbols = []models.SymbolInfo{{Name: "New", Kind: models.SymbolFunction, Line: 2}}
	require.NoError(t, s.UpsertFileIndex(ctx, project, item, "h2"))

	matches, err := s.QuerySymbols(ctx, project, "%")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "New", matches[0].Symbol.Name)
}

func TestIsIndexStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale, err := s.IsIndexStale(ctx, project, "missing.go", "h")
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{Path: "a.go"}, "h1"))

	stale, err = s.IsIndexStale(ctx, project, "a.go", "h1")
	require.NoError(t, err)
	assert.False(t, stale)

	stale, err = s.IsIndexStale(ctx, project, "a.go", "h2")
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestDeleteFileCascadesSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{
		Path:    "gone.go",
		Symbols: []models.SymbolInfo{{Name: "Orphan", Kind: models.SymbolFunction, Line: 1}},
	}, "h"))
	require.NoError(t, s.DeleteFile(ctx, project, "gone.go"))

	matches, err := s.QuerySymbols(ctx, project, "%")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestProjectSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{
		Path: "cmd/main.go", Component: "cli", Language: "go",
		Symbols: []models.SymbolInfo{{Name: "main", Kind: models.SymbolFunction, Line: 1}},
	}, "h1"))
	require.NoError(t, s.UpsertFileIndex(ctx, project, models.FileInventoryItem{
		Path: "web/index.ts", Component: "web", Language: "typescript",
	}, "h2"))
	require.NoError(t, s.UpsertEmbedding(ctx, project, "cmd/main.go", 0, "package main", []float32{1, 0}))

	summary, err := s.GetProjectSummary(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalFiles)
	assert.ElementsMatch(t, []string{"go", "typescript"}, summary.Languages)
	assert.Equal(t, 1, summary.ComponentCounts["cli"])
	assert.Equal(t, 1, summary.TotalSymbols)
	assert.Equal(t, 1, summary.EmbeddingChunks)
	assert.Contains(t, summary.KeyEntryPoints, "cmd/main.go:main")
	assert.Contains(t, summary.KeyEntryPoints, "web/index.ts")
}

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75}
	assert.Equal(t, vec, DecodeEmbedding(EncodeEmbedding(vec)))
}

func TestSemanticSearchTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbedding(ctx, project, "a.go", 0, "exact", []float32{1, 0, 0}))
	require.NoError(t, s.UpsertEmbedding(ctx, project, "a.go", 1, "close", []float32{0.9, 0.1, 0}))
	require.NoError(t, s.UpsertEmbedding(ctx, project, "b.go", 0, "far", []float32{0, 1, 0}))

	results, err := s.SemanticSearch(ctx, project, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].ChunkText)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	// top_k larger than stored chunks returns them all.
	all, err := s.SemanticSearch(ctx, project, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Similarity, all[i].Similarity)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, float64(CosineSimilarity([]float32{1, 2}, []float32{1, 2})), 1e-6)
	assert.InDelta(t, 0.0, float64(CosineSimilarity([]float32{1, 0}, []float32{0, 1})), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
}
