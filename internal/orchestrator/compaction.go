package orchestrator

import (
	"fmt"
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// compactionKeepRecent is how many trailing messages survive compaction
// verbatim.
const compactionKeepRecent = 8

// estimateTokens approximates history size at ~4 characters per token.
func estimateTokens(history []models.Message) int {
	chars := 0
	for _, msg := range history {
		for _, block := range msg.Content {
			chars += len(block.Text) + len(block.Content)
			for _, v := range block.Input {
				if s, ok := v.(string); ok {
					chars += len(s)
				}
			}
		}
	}
	return chars / 4
}

// CompactHistory folds older turns into one synthetic note when the
// estimated size crosses half the context window, keeping the most
// recent messages verbatim. Tool-use/result pairing stays intact because
// eviction happens only at message boundaries before the kept suffix.
func CompactHistory(history []models.Message, contextWindow int) []models.Message {
	if contextWindow <= 0 || len(history) <= compactionKeepRecent {
		return history
	}
	if estimateTokens(history) < contextWindow/2 {
		return history
	}

	cut := len(history) - compactionKeepRecent
	// Never split a tool_use from its result: move the cut before the
	// assistant message whose results would be evicted.
	for cut > 0 && startsWithToolResult(history[cut]) {
		cut--
	}
	if cut <= 0 {
		return history
	}

	evicted := history[:cut]
	summary := summarizeMessages(evicted)

	compacted := make([]models.Message, 0, len(history)-cut+1)
	compacted = append(compacted, models.NewTextMessage(models.RoleUser,
		"[Earlier conversation, compacted]\n"+summary))
	compacted = append(compacted, history[cut:]...)
	return compacted
}

func startsWithToolResult(msg models.Message) bool {
	return len(msg.Content) > 0 && msg.Content[0].Type == models.BlockToolResult
}

func summarizeMessages(messages []models.Message) string {
	var b strings.Builder
	toolCalls := 0
	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				text := strings.TrimSpace(block.Text)
				if text == "" {
					continue
				}
				if len(text) > 200 {
					text = text[:200] + "…"
				}
				fmt.Fprintf(&b, "%s: %s\n", msg.Role, text)
			case models.BlockToolUse:
				toolCalls++
			}
		}
	}
	if toolCalls > 0 {
		fmt.Fprintf(&b, "(%d tool calls and their results omitted)\n", toolCalls)
	}
	return b.String()
}
