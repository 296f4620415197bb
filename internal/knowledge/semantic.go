package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/index"
	"github.com/loomhq/loom/pkg/models"
)

// SemanticChunker opens a new chunk when the embedding similarity
// between consecutive sentences drops below Threshold, once at least
// MinSentences have accumulated. Sentences embed through the embedding
// service when one is supplied; otherwise a deterministic 32-dimension
// hash pseudo-embedding keeps the strategy usable offline.
type SemanticChunker struct {
	Threshold    float32
	MinSentences int
	Embedder     embedding.Provider
}

// NewSemanticChunker returns a semantic chunker. A nil embedder selects
// the hash pseudo-embedding.
func NewSemanticChunker(threshold float32, minSentences int, embedder embedding.Provider) *SemanticChunker {
	if threshold <= 0 {
		threshold = 0.3
	}
	if minSentences <= 0 {
		minSentences = 2
	}
	return &SemanticChunker{Threshold: threshold, MinSentences: minSentences, Embedder: embedder}
}

// Name implements Chunker.
func (c *SemanticChunker) Name() string { return "semantic" }

// Chunk implements Chunker.
func (c *SemanticChunker) Chunk(doc *models.Document) ([]models.Chunk, error) {
	sentences := splitSentences(doc.Content)
	if len(sentences) == 0 {
		return nil, nil
	}

	vectors, err := c.embedSentences(sentences)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	var current []sentenceSpan

	flush := func() {
		if len(current) == 0 {
			return
		}
		first, last := current[0], current[len(current)-1]
		content := doc.Content[first.offset : last.offset+len(last.text)]
		chunks = append(chunks, models.NewChunk(doc, len(chunks), first.offset, content))
		current = nil
	}

	for i, sentence := range sentences {
		if i > 0 && len(current) >= c.MinSentences {
			if index.CosineSimilarity(vectors[i-1], vectors[i]) < c.Threshold {
				flush()
			}
		}
		current = append(current, sentence)
	}
	flush()

	return chunks, nil
}

func (c *SemanticChunker) embedSentences(sentences []sentenceSpan) ([][]float32, error) {
	if c.Embedder == nil {
		vectors := make([][]float32, len(sentences))
		for i, s := range sentences {
			vectors[i] = pseudoEmbed(s.text)
		}
		return vectors, nil
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.text
	}

	// Respect the provider's batch ceiling.
	batch := c.Embedder.MaxBatchSize()
	var vectors [][]float32
	for start := 0; start < len(texts); start += batch {
		end := start + batch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.Embedder.EmbedDocuments(context.Background(), texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

// pseudoEmbedDimension is the width of the deterministic fallback
// embedding.
const pseudoEmbedDimension = 32

// pseudoEmbed hashes lowercase word tokens into a normalised 32-dim
// vector. Deterministic: the same sentence always embeds identically.
func pseudoEmbed(text string) []float32 {
	vec := make([]float32, pseudoEmbedDimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%pseudoEmbedDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
