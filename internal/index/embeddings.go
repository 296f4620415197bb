package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// EncodeEmbedding serialises a vector as little-endian f32 bytes, the
// on-disk blob format.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserialises a little-endian f32 blob.
func DecodeEmbedding(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// UpsertEmbedding stores one chunk's text and vector.
func (s *Store) UpsertEmbedding(ctx context.Context, projectPath, filePath string, chunkIndex int, chunkText string, vec []float32) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO file_embeddings (project_path, file_path, chunk_index, chunk_text, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		projectPath, filePath, chunkIndex, chunkText, EncodeEmbedding(vec), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// DeleteEmbeddings removes every embedding row of one file.
func (s *Store) DeleteEmbeddings(ctx context.Context, projectPath, filePath string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM file_embeddings WHERE project_path = ? AND file_path = ?`,
		projectPath, filePath,
	); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// SearchResult is one semantic-search hit.
type SearchResult struct {
	FilePath   string  `json:"file_path"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Similarity float32 `json:"similarity"`
}

// SemanticSearch loads every chunk of the project, scores it against the
// query vector in memory, and returns the top-k by similarity
// descending. The result length is min(stored chunks, topK).
func (s *Store) SemanticSearch(ctx context.Context, projectPath string, query []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, chunk_index, chunk_text, embedding FROM file_embeddings WHERE project_path = ?`,
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var blob []byte
		if err := rows.Scan(&r.FilePath, &r.ChunkIndex, &r.ChunkText, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		r.Similarity = CosineSimilarity(query, DecodeEmbedding(blob))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
