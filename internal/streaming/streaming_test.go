package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
)

func TestAccumulateUsage(t *testing.T) {
	var total models.UsageStats

	AccumulateUsage(&total, models.UsageStats{InputTokens: 100, OutputTokens: 5})
	AccumulateUsage(&total, models.UsageStats{OutputTokens: 7})
	AccumulateUsage(&total, models.UsageStats{InputTokens: 120, OutputTokens: 3, ThinkingTokens: 2})
	AccumulateUsage(&total, models.UsageStats{InputTokens: 0, OutputTokens: 1})

	// input: latest non-zero wins; everything else sums.
	assert.Equal(t, 120, total.InputTokens)
	assert.Equal(t, 16, total.OutputTokens)
	assert.Equal(t, 2, total.ThinkingTokens)
}

func collect(events ...[]models.UnifiedStreamEvent) []models.UnifiedStreamEvent {
	var out []models.UnifiedStreamEvent
	for _, batch := range events {
		out = append(out, batch...)
	}
	return out
}

func TestAnthropicAdapterTextAndTool(t *testing.T) {
	a := NewAnthropicAdapter("minimax")

	events := collect(
		a.ProcessLine(`data: {"type":"message_start","message":{"usage":{"input_tokens":42}}}`),
		a.ProcessLine(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`),
		a.ProcessLine(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hel"}}`),
		a.ProcessLine(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`),
		a.ProcessLine(`data: {"type":"content_block_stop"}`),
		a.ProcessLine(`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tc_1","name":"Read"}}`),
		a.ProcessLine(`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"file_path\":"}}`),
		a.ProcessLine(`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"\"a.go\"}"}}`),
		a.ProcessLine(`data: {"type":"content_block_stop"}`),
		a.ProcessLine(`data: {"type":"message_delta","delta":{"type":"message_delta","stop_reason":"tool_use"},"usage":{"output_tokens":9}}`),
		a.ProcessLine(`data: {"type":"message_stop"}`),
	)

	var text string
	var toolCall *models.ToolCall
	var complete *models.UnifiedStreamEvent
	for i, ev := range events {
		switch ev.Type {
		case models.EventTextDelta:
			text += ev.Text
		case models.EventToolComplete:
			toolCall = ev.Call
		case models.EventComplete:
			complete = &events[i]
		}
	}

	assert.Equal(t, "hello", text)
	require.NotNil(t, toolCall)
	assert.Equal(t, "tc_1", toolCall.ID)
	assert.Equal(t, "a.go", toolCall.Arguments["file_path"])
	require.NotNil(t, complete)
	assert.Equal(t, models.StopToolUse, complete.StopReason)
}

func TestAnthropicAdapterUsageDeltasSumToFinal(t *testing.T) {
	a := NewAnthropicAdapter("minimax")
	var total models.UsageStats

	events := collect(
		a.ProcessLine(`data: {"type":"message_start","message":{"usage":{"input_tokens":10}}}`),
		a.ProcessLine(`data: {"type":"message_delta","delta":{"type":"message_delta"},"usage":{"output_tokens":4}}`),
		a.ProcessLine(`data: {"type":"message_stop"}`),
	)
	for _, ev := range events {
		if ev.Type == models.EventUsage {
			AccumulateUsage(&total, *ev.Usage)
		}
	}

	assert.Equal(t, 10, total.InputTokens)
	assert.Equal(t, 4, total.OutputTokens)
}

func TestClaudeCLIAdapterDropsTopLevelDuplicates(t *testing.T) {
	a := NewClaudeCLIAdapter()

	wrapped := a.ProcessLine(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}}`)
	duplicate := a.ProcessLine(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`)

	require.Len(t, wrapped, 1)
	assert.Equal(t, models.EventTextDelta, wrapped[0].Type)
	assert.Empty(t, duplicate)
}

func TestClaudeCLIAdapterDropsFinalAssistantTextAfterStreaming(t *testing.T) {
	a := NewClaudeCLIAdapter()

	a.ProcessLine(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"streamed"}}}`)
	events := a.ProcessLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"streamed"},{"type":"tool_use","id":"t1","name":"LS","input":{"path":"."}}],"usage":{"input_tokens":3,"output_tokens":2}}}`)

	var sawText bool
	var toolCall *models.ToolCall
	var usage *models.UsageStats
	for _, ev := range events {
		switch ev.Type {
		case models.EventTextDelta:
			sawText = true
		case models.EventToolComplete:
			toolCall = ev.Call
		case models.EventUsage:
			usage = ev.Usage
		}
	}

	// Text is a duplicate of the streamed deltas; tool calls and usage
	// still come through.
	assert.False(t, sawText)
	require.NotNil(t, toolCall)
	assert.Equal(t, "LS", toolCall.Name)
	require.NotNil(t, usage)
	assert.Equal(t, 2, usage.OutputTokens)
}

func TestClaudeCLIAdapterEmitsAssistantTextWhenNothingStreamed(t *testing.T) {
	a := NewClaudeCLIAdapter()
	events := a.ProcessLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"only copy"}],"usage":{}}}`)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventTextDelta, events[0].Type)
	assert.Equal(t, "only copy", events[0].Text)
}

func TestClaudeCLIAdapterResetsOnResult(t *testing.T) {
	a := NewClaudeCLIAdapter()

	a.ProcessLine(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"turn one"}}}`)
	done := a.ProcessLine(`{"type":"result","usage":{"input_tokens":5,"output_tokens":5}}`)
	require.NotEmpty(t, done)

	// After reset, a fresh assistant message's text is no longer a
	// duplicate.
	events := a.ProcessLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"turn two"}],"usage":{}}}`)
	require.NotEmpty(t, events)
	assert.Equal(t, "turn two", events[0].Text)
}

func TestOpenAIAdapterBuffersToolArguments(t *testing.T) {
	a := NewOpenAIAdapter("qwen")

	events := collect(
		a.ProcessLine(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"Grep"}}]}}]}`),
		a.ProcessLine(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"pattern\":"}}]}}]}`),
		a.ProcessLine(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`),
		a.ProcessLine(`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`),
	)

	var call *models.ToolCall
	var stop models.StopReason
	for _, ev := range events {
		switch ev.Type {
		case models.EventToolComplete:
			call = ev.Call
		case models.EventComplete:
			stop = ev.StopReason
		}
	}

	require.NotNil(t, call)
	assert.Equal(t, "call_9", call.ID)
	assert.Equal(t, "x", call.Arguments["pattern"])
	assert.Equal(t, models.StopToolUse, stop)
}

func TestOpenAIAdapterThinkingBridge(t *testing.T) {
	a := NewOpenAIAdapter("qwen")

	first := a.ProcessLine(`data: {"choices":[{"delta":{"reasoning_content":"let me think"}}]}`)
	second := a.ProcessLine(`data: {"choices":[{"delta":{"content":"answer"}}]}`)

	require.Len(t, first, 2)
	assert.Equal(t, models.EventThinkingStart, first[0].Type)
	assert.Equal(t, models.EventThinkingDelta, first[1].Type)

	// First non-empty text closes the thinking block.
	require.Len(t, second, 2)
	assert.Equal(t, models.EventThinkingEnd, second[0].Type)
	assert.Equal(t, models.EventTextDelta, second[1].Type)
}

func TestOllamaAdapter(t *testing.T) {
	a := NewOllamaAdapter()

	events := collect(
		a.ProcessLine(`{"message":{"content":"hi "},"done":false}`),
		a.ProcessLine(`{"message":{"content":"there"},"done":false}`),
		a.ProcessLine(`{"message":{"content":""},"done":true,"prompt_eval_count":7,"eval_count":2}`),
	)

	var text string
	var usage *models.UsageStats
	sawComplete := false
	for _, ev := range events {
		switch ev.Type {
		case models.EventTextDelta:
			text += ev.Text
		case models.EventUsage:
			usage = ev.Usage
		case models.EventComplete:
			sawComplete = true
		}
	}

	assert.Equal(t, "hi there", text)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.InputTokens)
	assert.True(t, sawComplete)
}
