package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageStatsMergeIsAdditive(t *testing.T) {
	var u UsageStats
	u.Merge(UsageStats{InputTokens: 10, OutputTokens: 5, ThinkingTokens: 1})
	u.Merge(UsageStats{InputTokens: 3, CacheReadTokens: 7})

	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 5, u.OutputTokens)
	assert.Equal(t, 1, u.ThinkingTokens)
	assert.Equal(t, 7, u.CacheReadTokens)
	assert.Equal(t, 26, u.Total())
}

func TestMessageRoundTripOmitsEmptyFields(t *testing.T) {
	msg := NewTextMessage(RoleUser, "hi")
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tool_use_id")
	assert.NotContains(t, string(raw), "is_error")

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("tc_1", "output", true)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, BlockToolResult, msg.Content[0].Type)
	assert.Equal(t, "tc_1", msg.Content[0].ToolUseID)
	assert.True(t, msg.Content[0].IsError)
}

func TestMessageAccessors(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentBlock{
		{Type: BlockText, Text: "part one "},
		{Type: BlockToolUse, ID: "t1", Name: "Read"},
		{Type: BlockText, Text: "part two"},
	}}
	assert.Equal(t, "part one part two", msg.TextContent())
	require.Len(t, msg.ToolUses(), 1)
	assert.Equal(t, "t1", msg.ToolUses()[0].ID)
}

func TestProviderConfigRoundTrip(t *testing.T) {
	temp := 0.4
	cfg := ProviderConfig{
		Kind: ProviderMiniMax, Model: "MiniMax-M2.5", MaxTokens: 2048,
		Temperature: &temp, EnableThinking: true, ThinkingBudget: 4096,
		FallbackMode: FallbackSoft,
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "base_url")
	assert.NotContains(t, string(raw), "proxy")

	var decoded ProviderConfig
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, cfg, decoded)
}

func TestStopOther(t *testing.T) {
	assert.Equal(t, StopReason("other:content_filter"), StopOther("content_filter"))
}

func TestChanSenderDropsAfterClose(t *testing.T) {
	s := NewChanSender(2)
	assert.True(t, s.Send(UnifiedStreamEvent{Type: EventTextDelta, Text: "a"}))
	s.Close()
	assert.False(t, s.Send(UnifiedStreamEvent{Type: EventTextDelta, Text: "b"}))
}

func TestNewChunkInheritsMetadata(t *testing.T) {
	doc := &Document{ID: "d", Content: "hello world", Metadata: map[string]string{"k": "v"}}
	chunk := NewChunk(doc, 2, 6, "world")
	assert.Equal(t, "d:2", chunk.ChunkID)
	assert.Equal(t, 6, chunk.CharOffset)
	assert.Equal(t, "v", chunk.Metadata["k"])

	// The chunk owns a copy, not the document's map.
	chunk.Metadata["k"] = "changed"
	assert.Equal(t, "v", doc.Metadata["k"])
}
