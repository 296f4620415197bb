// Package streaming normalises provider-specific stream framings into the
// unified event alphabet. Each provider supplies a StreamAdapter that
// consumes raw server-sent lines (or NDJSON objects) and emits
// UnifiedStreamEvents; overlapping framings of the same tokens are
// deduplicated here so no text is ever emitted twice.
package streaming

import (
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// StreamAdapter turns raw wire lines into unified events.
//
// Adapters are stateful within a turn: they buffer partial tool-input
// JSON until a block stop or finish reason, track open thinking blocks,
// and reset all per-turn state when the terminal frame arrives.
type StreamAdapter interface {
	// ProcessLine consumes one raw line. For SSE transports the line is
	// the payload of a data: field; for NDJSON transports it is one JSON
	// object. Returns the unified events the line produced, possibly none.
	ProcessLine(line string) []models.UnifiedStreamEvent

	// Finish flushes any state left when the transport closes without a
	// terminal frame.
	Finish() []models.UnifiedStreamEvent
}

// AccumulateUsage folds a usage delta into the running total with the
// stream accounting rules: output, thinking, and cache buckets are sums;
// input_tokens takes the latest non-zero observation.
func AccumulateUsage(total *models.UsageStats, delta models.UsageStats) {
	if delta.InputTokens > 0 {
		total.InputTokens = delta.InputTokens
	}
	total.OutputTokens += delta.OutputTokens
	total.ThinkingTokens += delta.ThinkingTokens
	total.CacheReadTokens += delta.CacheReadTokens
	total.CacheCreationTokens += delta.CacheCreationTokens
}

// SSEData extracts the payload of an SSE line, returning ok=false for
// comments, event names, and blank keep-alives.
func SSEData(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || data == "[DONE]" {
		return "", false
	}
	return data, true
}
