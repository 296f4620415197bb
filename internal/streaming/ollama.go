package streaming

import (
	"encoding/json"

	"github.com/loomhq/loom/pkg/models"
)

// ollamaChunk is one NDJSON object from Ollama's /api/chat stream.
type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// OllamaAdapter normalises Ollama NDJSON chat frames. Ollama has no
// native tool channel; tool calls are recovered later by the fallback
// parser over the assembled text.
type OllamaAdapter struct {
	finished bool
}

// NewOllamaAdapter returns a fresh adapter.
func NewOllamaAdapter() *OllamaAdapter { return &OllamaAdapter{} }

// ProcessLine consumes one NDJSON line.
func (a *OllamaAdapter) ProcessLine(line string) []models.UnifiedStreamEvent {
	if len(line) == 0 || line[0] != '{' {
		return nil
	}

	var chunk ollamaChunk
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return nil
	}

	var out []models.UnifiedStreamEvent
	if chunk.Message.Content != "" {
		out = append(out, models.UnifiedStreamEvent{Type: models.EventTextDelta, Text: chunk.Message.Content})
	}

	if chunk.Done {
		if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
			usage := models.UsageStats{InputTokens: chunk.PromptEvalCount, OutputTokens: chunk.EvalCount}
			out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
		}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: models.StopEndTurn})
		a.finished = true
	}

	return out
}

// Finish emits nothing once a done=true frame has been seen; otherwise it
// emits the complete event the stream never delivered.
func (a *OllamaAdapter) Finish() []models.UnifiedStreamEvent {
	if a.finished {
		return nil
	}
	return []models.UnifiedStreamEvent{{Type: models.EventComplete, StopReason: models.StopEndTurn}}
}
