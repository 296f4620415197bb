package fallback

import (
	"fmt"
	"strings"
)

// ExtractTextWithoutToolCalls returns the user-visible text of a
// response: the same six passes run in delete mode, triple blank lines
// collapse to double, and adjacent identical paragraphs are deduplicated.
// Parsing the result again always yields zero calls.
func ExtractTextWithoutToolCalls(text string) string {
	var result strings.Builder
	remaining := text

	// Pass 1: remove ```tool_call fenced blocks. An unclosed fence is
	// kept verbatim so partial streams stay visible.
	for {
		start := strings.Index(remaining, "```tool_call")
		if start < 0 {
			break
		}
		result.WriteString(remaining[:start])

		afterMarker := remaining[start+len("```tool_call"):]
		end := strings.Index(afterMarker, "```")
		if end < 0 {
			result.WriteString(remaining[start:])
			remaining = ""
			break
		}
		remaining = afterMarker[end+3:]
	}
	result.WriteString(remaining)

	// Pass 2: remove <tool_call> XML blocks. A missing close tag
	// truncates to the open tag.
	cleaned := result.String()
	for {
		start := strings.Index(cleaned, "<tool_call>")
		if start < 0 {
			break
		}
		endOffset := strings.Index(cleaned[start:], "</tool_call>")
		if endOffset < 0 {
			cleaned = cleaned[:start]
			break
		}
		cleaned = cleaned[:start] + cleaned[start+endOffset+len("</tool_call>"):]
	}

	// Pass 3: remove [TOOL] ... spans up to the next marker or newline.
	for {
		lower := strings.ToLower(cleaned)
		start := strings.Index(lower, "[tool]")
		if start < 0 {
			break
		}
		after := cleaned[start+6:]
		var end int
		if nextTool := strings.Index(strings.ToLower(after), "[tool]"); nextTool >= 0 {
			end = start + 6 + nextTool
		} else {
			newline := strings.Index(after, "\n")
			if newline < 0 {
				newline = len(after)
			}
			end = start + 6 + newline
		}
		cleaned = cleaned[:start] + cleaned[end:]
	}

	// Passes 4–6: delete whatever the structural passes still find.
	for _, call := range parseDirectXMLToolCalls(cleaned) {
		cleaned = strings.Replace(cleaned, call.RawText, "", 1)
	}
	for _, call := range parseBareFunctionCalls(cleaned) {
		cleaned = strings.Replace(cleaned, call.RawText, "", 1)
	}
	for _, call := range parseBareJSONToolCalls(cleaned) {
		cleaned = strings.Replace(cleaned, call.RawText, "", 1)
	}

	// Drop leftover tool_call label lines.
	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(trimmed, "tool_call:") || strings.EqualFold(trimmed, "tool_call") {
			continue
		}
		kept = append(kept, line)
	}
	cleaned = strings.Join(kept, "\n")

	for strings.Contains(cleaned, "\n\n\n") {
		cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n\n")
	}

	// Deduplicate adjacent identical paragraphs.
	paragraphs := strings.Split(cleaned, "\n\n")
	deduped := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		if len(deduped) > 0 && strings.TrimSpace(deduped[len(deduped)-1]) == trimmed {
			continue
		}
		deduped = append(deduped, para)
	}
	cleaned = strings.Join(deduped, "\n\n")

	return strings.TrimSpace(cleaned)
}

// FormatToolResult renders a tool result as the user-message text fed
// back to prompt-mode providers.
func FormatToolResult(toolName, toolID, result string, isError bool) string {
	if isError {
		return fmt.Sprintf("[Tool Result: %s (id: %s)]\nError: %s", toolName, toolID, result)
	}
	return fmt.Sprintf("[Tool Result: %s (id: %s)]\n%s", toolName, toolID, result)
}
