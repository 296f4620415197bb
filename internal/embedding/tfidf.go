package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// tfIdfDimension is the hashed vocabulary size. Terms are hashed into a
// fixed-width vector so stored embeddings stay comparable; Dimension
// always reports this width and does not grow with the vocabulary.
const tfIdfDimension = 512

// TfIdfProvider is the local, dependency-free embedding fallback: hashed
// term frequencies weighted by a corpus-running inverse document
// frequency. Useful offline and as the deterministic baseline in tests.
type TfIdfProvider struct {
	mu       sync.Mutex
	docCount int
	docFreq  map[uint32]int
}

// NewTfIdfProvider returns an empty-corpus provider.
func NewTfIdfProvider() *TfIdfProvider {
	return &TfIdfProvider{docFreq: make(map[uint32]int)}
}

func (p *TfIdfProvider) ProviderType() ProviderType { return TypeTfIdf }
func (p *TfIdfProvider) DisplayName() string        { return "TF-IDF (local)" }
func (p *TfIdfProvider) IsLocal() bool              { return true }
func (p *TfIdfProvider) Dimension() int             { return tfIdfDimension }
func (p *TfIdfProvider) MaxBatchSize() int          { return 1000 }

// HealthCheck always passes; there is nothing remote to probe.
func (p *TfIdfProvider) HealthCheck(ctx context.Context) error { return nil }

// EmbedDocuments embeds a batch, updating corpus statistics first so idf
// weights reflect the whole batch.
func (p *TfIdfProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch("tfidf", len(texts), p.MaxBatchSize()); err != nil {
		return nil, err
	}

	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		tokenized[i] = tokenize(text)
	}

	p.mu.Lock()
	for _, tokens := range tokenized {
		p.docCount++
		seen := map[uint32]bool{}
		for _, tok := range tokens {
			h := hashTerm(tok)
			if !seen[h] {
				seen[h] = true
				p.docFreq[h]++
			}
		}
	}
	docCount := p.docCount
	docFreq := make(map[uint32]int, len(p.docFreq))
	for k, v := range p.docFreq {
		docFreq[k] = v
	}
	p.mu.Unlock()

	vecs := make([][]float32, len(texts))
	for i, tokens := range tokenized {
		vecs[i] = embedTokens(tokens, docCount, docFreq)
	}
	return vecs, nil
}

// EmbedQuery embeds the query as a document; TF-IDF retrieval is
// symmetric.
func (p *TfIdfProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func embedTokens(tokens []string, docCount int, docFreq map[uint32]int) []float32 {
	vec := make([]float32, tfIdfDimension)
	if len(tokens) == 0 {
		return vec
	}

	counts := map[uint32]int{}
	for _, tok := range tokens {
		counts[hashTerm(tok)]++
	}

	var norm float64
	for h, count := range counts {
		tf := float64(count) / float64(len(tokens))
		idf := math.Log(float64(docCount+1)/float64(docFreq[h]+1)) + 1
		w := tf * idf
		vec[h%tfIdfDimension] += float32(w)
		norm += w * w
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32()
}
