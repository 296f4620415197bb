package streaming

import (
	"encoding/json"

	"github.com/loomhq/loom/pkg/models"
)

// anthropicEvent is the subset of the Messages API stream frame the
// adapter needs. Every frame carries a type; the remaining fields are
// populated per type.
type anthropicEvent struct {
	Type string `json:"type"`

	Message *struct {
		Model string              `json:"model"`
		Usage anthropicUsageFrame `json:"usage"`
	} `json:"message,omitempty"`

	Index        int `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`

	Usage *anthropicUsageFrame `json:"usage,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicUsageFrame struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// AnthropicAdapter normalises Messages-API SSE frames. It also serves
// Anthropic-compatible endpoints (MiniMax) whose framing matches.
type AnthropicAdapter struct {
	component string

	inThinking   bool
	currentTool  *models.ToolCall
	toolInputBuf string
	stopReason   models.StopReason
}

// NewAnthropicAdapter returns an adapter labelled with the component name
// used in error events.
func NewAnthropicAdapter(component string) *AnthropicAdapter {
	return &AnthropicAdapter{component: component, stopReason: models.StopEndTurn}
}

// ProcessLine consumes one SSE data payload.
func (a *AnthropicAdapter) ProcessLine(line string) []models.UnifiedStreamEvent {
	data, ok := SSEData(line)
	if !ok {
		// Callers may hand us bare JSON objects already stripped of the
		// SSE envelope.
		if len(line) == 0 || line[0] != '{' {
			return nil
		}
		data = line
	}

	var ev anthropicEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil
	}
	return a.handle(&ev)
}

func (a *AnthropicAdapter) handle(ev *anthropicEvent) []models.UnifiedStreamEvent {
	var out []models.UnifiedStreamEvent

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			usage := models.UsageStats{
				InputTokens:         ev.Message.Usage.InputTokens,
				CacheReadTokens:     ev.Message.Usage.CacheReadInputTokens,
				CacheCreationTokens: ev.Message.Usage.CacheCreationInputTokens,
			}
			out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
		}

	case "content_block_start":
		if ev.ContentBlock == nil {
			break
		}
		switch ev.ContentBlock.Type {
		case "thinking":
			a.inThinking = true
			out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingStart})
		case "tool_use":
			a.currentTool = &models.ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
			a.toolInputBuf = ""
			out = append(out, models.UnifiedStreamEvent{Type: models.EventToolStart, ToolID: ev.ContentBlock.ID, ToolName: ev.ContentBlock.Name})
		}

	case "content_block_delta":
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text != "" {
				out = append(out, models.UnifiedStreamEvent{Type: models.EventTextDelta, Text: ev.Delta.Text})
			}
		case "thinking_delta":
			if ev.Delta.Thinking != "" {
				out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingDelta, Text: ev.Delta.Thinking})
			}
		case "input_json_delta":
			if ev.Delta.PartialJSON != "" {
				a.toolInputBuf += ev.Delta.PartialJSON
				if a.currentTool != nil {
					out = append(out, models.UnifiedStreamEvent{Type: models.EventToolInputDelta, ToolID: a.currentTool.ID, InputDelta: ev.Delta.PartialJSON})
				}
			}
		}

	case "content_block_stop":
		if a.inThinking {
			a.inThinking = false
			out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingEnd})
		} else if a.currentTool != nil {
			out = append(out, a.finalizeTool())
		}

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			a.stopReason = mapStop(ev.Delta.StopReason)
		}
		if ev.Usage != nil && ev.Usage.OutputTokens > 0 {
			usage := models.UsageStats{OutputTokens: ev.Usage.OutputTokens}
			out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
		}

	case "message_stop":
		out = append(out, models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: a.stopReason})
		a.reset()

	case "error":
		msg := "stream error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventError, Message: a.component + ": " + msg})
		a.reset()
	}

	return out
}

// Finish flushes an in-flight tool call if the transport closed early.
func (a *AnthropicAdapter) Finish() []models.UnifiedStreamEvent {
	var out []models.UnifiedStreamEvent
	if a.currentTool != nil {
		out = append(out, a.finalizeTool())
	}
	if a.inThinking {
		a.inThinking = false
		out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingEnd})
	}
	return out
}

func (a *AnthropicAdapter) finalizeTool() models.UnifiedStreamEvent {
	tool := a.currentTool
	args := map[string]any{}
	if a.toolInputBuf != "" {
		_ = json.Unmarshal([]byte(a.toolInputBuf), &args)
	}
	tool.Arguments = args
	a.currentTool = nil
	a.toolInputBuf = ""
	return models.UnifiedStreamEvent{Type: models.EventToolComplete, ToolID: tool.ID, ToolName: tool.Name, Call: tool}
}

func (a *AnthropicAdapter) reset() {
	a.inThinking = false
	a.currentTool = nil
	a.toolInputBuf = ""
	a.stopReason = models.StopEndTurn
}

func mapStop(reason string) models.StopReason {
	switch reason {
	case "end_turn":
		return models.StopEndTurn
	case "max_tokens":
		return models.StopMaxTokens
	case "stop_sequence":
		return models.StopStopSequence
	case "tool_use":
		return models.StopToolUse
	default:
		return models.StopOther(reason)
	}
}
