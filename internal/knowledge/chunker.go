// Package knowledge turns documents into chunks for indexing. Three
// strategies sit behind one interface: paragraph-structural, fixed token
// windows, and semantic similarity boundaries.
package knowledge

import (
	"strings"
	"unicode"

	"github.com/loomhq/loom/pkg/models"
)

// Chunker splits a document into chunks. Chunk ids are always
// "{doc_id}:{index}" with zero-based indexes; char offsets point into the
// original content and metadata is inherited from the document.
type Chunker interface {
	Chunk(doc *models.Document) ([]models.Chunk, error)
	Name() string
}

// sentenceSpan is one sentence with its offset in the source text.
type sentenceSpan struct {
	text   string
	offset int
}

// splitSentences cuts text at `.`, `!`, `?` followed by whitespace or
// end of input.
func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		atEnd := i == len(text)-1
		followedBySpace := !atEnd && unicode.IsSpace(rune(text[i+1]))
		if !atEnd && !followedBySpace {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+1])
		if sentence != "" {
			offset := start + leadingSpace(text[start:i+1])
			spans = append(spans, sentenceSpan{text: sentence, offset: offset})
		}
		start = i + 1
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		offset := start + leadingSpace(text[start:])
		spans = append(spans, sentenceSpan{text: tail, offset: offset})
	}
	return spans
}

func leadingSpace(s string) int {
	return len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
}
