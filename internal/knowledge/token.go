package knowledge

import (
	"unicode"

	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

// TokenChunker cuts whitespace-token windows of TokenCount tokens with
// OverlapTokens shared between adjacent windows. The step between
// windows is max(1, TokenCount-OverlapTokens); overlap must stay at most
// TokenCount-1.
type TokenChunker struct {
	TokenCount    int
	OverlapTokens int
}

// NewTokenChunker validates and returns a token chunker.
func NewTokenChunker(tokenCount, overlapTokens int) (*TokenChunker, error) {
	if tokenCount <= 0 {
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "chunker", Message: "token_count must be positive"}
	}
	if overlapTokens < 0 || overlapTokens > tokenCount-1 {
		return nil, &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "chunker", Message: "overlap_tokens must be in [0, token_count-1]"}
	}
	return &TokenChunker{TokenCount: tokenCount, OverlapTokens: overlapTokens}, nil
}

// Name implements Chunker.
func (c *TokenChunker) Name() string { return "token" }

type tokenSpan struct {
	start, end int
}

// Chunk implements Chunker.
func (c *TokenChunker) Chunk(doc *models.Document) ([]models.Chunk, error) {
	spans := tokenSpans(doc.Content)
	if len(spans) == 0 {
		return nil, nil
	}

	step := c.TokenCount - c.OverlapTokens
	if step < 1 {
		step = 1
	}

	var chunks []models.Chunk
	for start := 0; start < len(spans); start += step {
		end := start + c.TokenCount
		if end > len(spans) {
			end = len(spans)
		}
		first, last := spans[start], spans[end-1]
		content := doc.Content[first.start:last.end]
		chunks = append(chunks, models.NewChunk(doc, len(chunks), first.start, content))
		if end == len(spans) {
			break
		}
	}

	return chunks, nil
}

func tokenSpans(text string) []tokenSpan {
	var spans []tokenSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, tokenSpan{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, tokenSpan{start: start, end: len(text)})
	}
	return spans
}
