package streaming

import (
	"encoding/json"

	"github.com/loomhq/loom/pkg/models"
)

// claudeCLIFrame is one NDJSON line from the Claude CLI bridge. The CLI
// emits overlapping framings of the same tokens: `stream_event`-wrapped
// Messages-API deltas, duplicated top-level content_block_delta frames,
// and a final `assistant` message restating the whole turn.
type claudeCLIFrame struct {
	Type string `json:"type"`

	// Event is the wrapped Messages-API frame for stream_event lines.
	Event json.RawMessage `json:"event,omitempty"`

	// Message is the final assistant restatement.
	Message *struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		Usage anthropicUsageFrame `json:"usage"`
	} `json:"message,omitempty"`

	// Result fields.
	Usage   *anthropicUsageFrame `json:"usage,omitempty"`
	IsError bool                 `json:"is_error,omitempty"`
	Result  string               `json:"result,omitempty"`
}

// ClaudeCLIAdapter normalises the Claude CLI stream-json output.
//
// Dedup rules: once a stream_event wrapper has been seen, top-level
// Messages-API frames are dropped as duplicates; the final assistant
// message's text is dropped whenever any streamed text was already
// emitted, but its tool calls and usage are still extracted. All
// per-turn state resets on the result frame.
type ClaudeCLIAdapter struct {
	inner *AnthropicAdapter

	usesStreamEvents bool
	streamedText     bool
	emittedTools     map[string]bool
}

// NewClaudeCLIAdapter returns a fresh adapter for one CLI turn.
func NewClaudeCLIAdapter() *ClaudeCLIAdapter {
	return &ClaudeCLIAdapter{
		inner:        NewAnthropicAdapter("claude_cli"),
		emittedTools: map[string]bool{},
	}
}

// ProcessLine consumes one NDJSON line from the CLI child.
func (a *ClaudeCLIAdapter) ProcessLine(line string) []models.UnifiedStreamEvent {
	if len(line) == 0 || line[0] != '{' {
		return nil
	}

	var frame claudeCLIFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return nil
	}

	switch frame.Type {
	case "stream_event":
		a.usesStreamEvents = true
		events := a.inner.ProcessLine(string(frame.Event))
		return a.track(events)

	case "assistant":
		return a.handleAssistant(&frame)

	case "result":
		var out []models.UnifiedStreamEvent
		if frame.Usage != nil {
			usage := models.UsageStats{
				InputTokens:         frame.Usage.InputTokens,
				OutputTokens:        frame.Usage.OutputTokens,
				CacheReadTokens:     frame.Usage.CacheReadInputTokens,
				CacheCreationTokens: frame.Usage.CacheCreationInputTokens,
			}
			out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
		}
		if frame.IsError {
			out = append(out, models.UnifiedStreamEvent{Type: models.EventError, Message: "claude_cli: " + frame.Result})
		} else {
			out = append(out, models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: models.StopEndTurn})
		}
		a.reset()
		return out

	case "system":
		return nil

	case "message_start", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop":
		// Top-level duplicate of a wrapped frame; drop once wrappers
		// have been observed.
		if a.usesStreamEvents {
			return nil
		}
		events := a.inner.ProcessLine(line)
		return a.track(events)
	}

	return nil
}

// Finish flushes the inner adapter.
func (a *ClaudeCLIAdapter) Finish() []models.UnifiedStreamEvent {
	return a.inner.Finish()
}

func (a *ClaudeCLIAdapter) handleAssistant(frame *claudeCLIFrame) []models.UnifiedStreamEvent {
	if frame.Message == nil {
		return nil
	}

	var out []models.UnifiedStreamEvent
	for _, block := range frame.Message.Content {
		switch block.Type {
		case "text":
			if a.streamedText || block.Text == "" {
				continue
			}
			a.streamedText = true
			out = append(out, models.UnifiedStreamEvent{Type: models.EventTextDelta, Text: block.Text})
		case "tool_use":
			if a.emittedTools[block.ID] {
				continue
			}
			a.emittedTools[block.ID] = true
			args := map[string]any{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			call := &models.ToolCall{ID: block.ID, Name: block.Name, Arguments: args}
			out = append(out,
				models.UnifiedStreamEvent{Type: models.EventToolStart, ToolID: call.ID, ToolName: call.Name},
				models.UnifiedStreamEvent{Type: models.EventToolComplete, ToolID: call.ID, ToolName: call.Name, Call: call},
			)
		}
	}

	if usage := frame.Message.Usage; usage.OutputTokens > 0 || usage.InputTokens > 0 {
		delta := models.UsageStats{
			InputTokens:         usage.InputTokens,
			OutputTokens:        usage.OutputTokens,
			CacheReadTokens:     usage.CacheReadInputTokens,
			CacheCreationTokens: usage.CacheCreationInputTokens,
		}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &delta})
	}

	return out
}

func (a *ClaudeCLIAdapter) track(events []models.UnifiedStreamEvent) []models.UnifiedStreamEvent {
	for _, ev := range events {
		switch ev.Type {
		case models.EventTextDelta:
			a.streamedText = true
		case models.EventToolComplete:
			a.emittedTools[ev.ToolID] = true
		}
	}
	return events
}

func (a *ClaudeCLIAdapter) reset() {
	a.inner.reset()
	a.usesStreamEvents = false
	a.streamedText = false
	a.emittedTools = map[string]bool{}
}
