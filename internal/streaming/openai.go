package streaming

import (
	"encoding/json"
	"strconv"

	"github.com/loomhq/loom/pkg/models"
)

// openAIChunk is the chat.completion.chunk SSE frame shared by
// OpenAI-compatible endpoints and DashScope's compatible mode.
type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    *int   `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// partialToolCall accumulates a tool call across argument fragments.
type partialToolCall struct {
	id   string
	name string
	args string
}

// OpenAIAdapter normalises OpenAI-style chat completion chunks.
//
// DashScope shares this framing but lacks a dedicated thinking channel;
// its `reasoning_content` field opens a thinking block on the first
// non-empty chunk and closes it on the first non-empty text content or
// finish reason.
type OpenAIAdapter struct {
	component string

	tools      map[int]*partialToolCall
	toolOrder  []int
	inThinking bool
	sawText    bool
	finished   bool
}

// NewOpenAIAdapter returns an adapter labelled with the component name.
func NewOpenAIAdapter(component string) *OpenAIAdapter {
	return &OpenAIAdapter{component: component, tools: map[int]*partialToolCall{}}
}

// ProcessLine consumes one SSE line.
func (a *OpenAIAdapter) ProcessLine(line string) []models.UnifiedStreamEvent {
	data, ok := SSEData(line)
	if !ok {
		if line == "data: [DONE]" || line == "[DONE]" {
			return a.complete(models.StopEndTurn)
		}
		if len(line) == 0 || line[0] != '{' {
			return nil
		}
		data = line
	}

	var chunk openAIChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}

	var out []models.UnifiedStreamEvent

	if chunk.Usage != nil {
		usage := models.UsageStats{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
	}

	if len(chunk.Choices) == 0 {
		return out
	}
	choice := chunk.Choices[0]

	if choice.Delta.ReasoningContent != "" {
		if !a.inThinking {
			a.inThinking = true
			out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingStart})
		}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingDelta, Text: choice.Delta.ReasoningContent})
	}

	if choice.Delta.Content != "" {
		if a.inThinking {
			a.inThinking = false
			out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingEnd})
		}
		a.sawText = true
		out = append(out, models.UnifiedStreamEvent{Type: models.EventTextDelta, Text: choice.Delta.Content})
	}

	for _, tc := range choice.Delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		partial, exists := a.tools[index]
		if !exists {
			partial = &partialToolCall{}
			a.tools[index] = partial
			a.toolOrder = append(a.toolOrder, index)
		}
		if tc.ID != "" {
			partial.id = tc.ID
		}
		if tc.Function.Name != "" {
			if partial.name == "" {
				out = append(out, models.UnifiedStreamEvent{Type: models.EventToolStart, ToolID: partial.id, ToolName: tc.Function.Name})
			}
			partial.name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			partial.args += tc.Function.Arguments
			out = append(out, models.UnifiedStreamEvent{Type: models.EventToolInputDelta, ToolID: partial.id, InputDelta: tc.Function.Arguments})
		}
	}

	if choice.FinishReason != "" {
		stop := models.StopEndTurn
		switch choice.FinishReason {
		case "tool_calls":
			stop = models.StopToolUse
		case "length":
			stop = models.StopMaxTokens
		case "stop":
			stop = models.StopEndTurn
		default:
			stop = models.StopOther(choice.FinishReason)
		}
		out = append(out, a.complete(stop)...)
	}

	return out
}

// Finish flushes buffered tool calls if the transport closed without a
// finish reason.
func (a *OpenAIAdapter) Finish() []models.UnifiedStreamEvent {
	if a.finished {
		return nil
	}
	return a.complete(models.StopEndTurn)
}

func (a *OpenAIAdapter) complete(stop models.StopReason) []models.UnifiedStreamEvent {
	var out []models.UnifiedStreamEvent

	if a.inThinking {
		a.inThinking = false
		out = append(out, models.UnifiedStreamEvent{Type: models.EventThinkingEnd})
	}

	for i, index := range a.toolOrder {
		partial := a.tools[index]
		if partial.name == "" {
			continue
		}
		if partial.id == "" {
			partial.id = a.component + "_call_" + strconv.Itoa(i)
		}
		args := map[string]any{}
		if partial.args != "" {
			_ = json.Unmarshal([]byte(partial.args), &args)
		}
		call := &models.ToolCall{ID: partial.id, Name: partial.name, Arguments: args}
		out = append(out, models.UnifiedStreamEvent{Type: models.EventToolComplete, ToolID: call.ID, ToolName: call.Name, Call: call})
	}

	out = append(out, models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: stop})

	a.tools = map[int]*partialToolCall{}
	a.toolOrder = nil
	a.sawText = false
	a.finished = true
	return out
}
