package knowledge

import (
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// ParagraphChunker splits on blank lines and markdown header lines.
// Segments larger than MaxSize are further split at sentence boundaries,
// closing a piece once the running length reaches MaxSize/4.
type ParagraphChunker struct {
	// MaxSize is the oversized-segment threshold in characters.
	// Default: 1000.
	MaxSize int
}

// NewParagraphChunker returns a chunker with the given max size.
func NewParagraphChunker(maxSize int) *ParagraphChunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ParagraphChunker{MaxSize: maxSize}
}

// Name implements Chunker.
func (c *ParagraphChunker) Name() string { return "paragraph" }

// Chunk implements Chunker.
func (c *ParagraphChunker) Chunk(doc *models.Document) ([]models.Chunk, error) {
	segments := c.splitSegments(doc.Content)

	var chunks []models.Chunk
	for _, seg := range segments {
		if len(seg.text) <= c.MaxSize {
			chunks = append(chunks, models.NewChunk(doc, len(chunks), seg.offset, seg.text))
			continue
		}

		// Oversized: re-split at sentence boundaries.
		limit := c.MaxSize / 4
		var piece strings.Builder
		pieceOffset := seg.offset
		for _, sentence := range splitSentences(seg.text) {
			if piece.Len() == 0 {
				pieceOffset = seg.offset + sentence.offset
			} else {
				piece.WriteString(" ")
			}
			piece.WriteString(sentence.text)
			if piece.Len() >= limit {
				chunks = append(chunks, models.NewChunk(doc, len(chunks), pieceOffset, piece.String()))
				piece.Reset()
			}
		}
		if piece.Len() > 0 {
			chunks = append(chunks, models.NewChunk(doc, len(chunks), pieceOffset, piece.String()))
		}
	}

	return chunks, nil
}

type segment struct {
	text   string
	offset int
}

// splitSegments cuts content at blank lines and before lines starting
// with '#'.
func (c *ParagraphChunker) splitSegments(content string) []segment {
	var segments []segment
	var current strings.Builder
	currentOffset := 0
	offset := 0

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			segments = append(segments, segment{text: text, offset: currentOffset + leadingSpace(current.String())})
		}
		current.Reset()
	}

	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimSpace(line)
		isBlank := trimmed == ""
		isHeader := strings.HasPrefix(trimmed, "#")

		if isBlank {
			flush()
			offset += len(line)
			currentOffset = offset
			continue
		}
		if isHeader && current.Len() > 0 {
			flush()
			currentOffset = offset
		}
		if current.Len() == 0 {
			currentOffset = offset
		}
		current.WriteString(line)
		offset += len(line)
	}
	flush()

	return segments
}
