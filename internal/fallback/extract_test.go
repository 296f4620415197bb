package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRemovesFencedBlocks(t *testing.T) {
	text := "before\n```tool_call\n{\"tool\":\"LS\",\"arguments\":{}}\n```\nafter"
	cleaned := ExtractTextWithoutToolCalls(text)
	assert.Equal(t, "before\n\nafter", cleaned)
}

func TestExtractRemovesXMLBlocks(t *testing.T) {
	text := `intro <tool_call>{"tool":"LS","arguments":{}}</tool_call> outro`
	cleaned := ExtractTextWithoutToolCalls(text)
	assert.Equal(t, "intro  outro", cleaned)
}

func TestExtractCollapsesTripleBlankLines(t *testing.T) {
	cleaned := ExtractTextWithoutToolCalls("a\n\n\n\nb")
	assert.NotContains(t, cleaned, "\n\n\n")
}

func TestExtractDeduplicatesAdjacentParagraphs(t *testing.T) {
	cleaned := ExtractTextWithoutToolCalls("same paragraph\n\nsame paragraph\n\ndifferent")
	assert.Equal(t, 1, strings.Count(cleaned, "same paragraph"))
	assert.Contains(t, cleaned, "different")
}

// Parsing the extractor's output must always yield zero calls.
func TestExtractParseIdempotence(t *testing.T) {
	inputs := []string{
		"```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"file_path\":\"a.go\"}}\n```",
		`<tool_call>{"tool":"LS","arguments":{}}</tool_call>`,
		"[TOOL] Read(x.go)\ntext",
		"<Read><file_path>a.go</file_path></Read>",
		"Read(src/main.rs)",
		`{"tool":"Grep","arguments":{"pattern":"x"}}`,
		"tool_call:\n{\"tool\":\"LS\",\"arguments\":{}}",
		"plain text with no calls",
		"<tool_call>LS Cwd",
	}
	for _, input := range inputs {
		cleaned := ExtractTextWithoutToolCalls(input)
		assert.Empty(t, ParseToolCalls(cleaned), "input: %q -> cleaned %q", input, cleaned)
	}
}

func TestFormatToolResult(t *testing.T) {
	ok := FormatToolResult("Read", "call_1", "file contents", false)
	assert.Equal(t, "[Tool Result: Read (id: call_1)]\nfile contents", ok)

	failed := FormatToolResult("Bash", "call_2", "exit 1", true)
	assert.Equal(t, "[Tool Result: Bash (id: call_2)]\nError: exit 1", failed)
}

func TestBuildToolCallInstructions(t *testing.T) {
	defs := sampleToolDefs()
	instructions := BuildToolCallInstructions(defs)

	require.Contains(t, instructions, "```tool_call")
	assert.Contains(t, instructions, "### Read")
	assert.Contains(t, instructions, "`file_path` (string (required))")
	assert.Contains(t, instructions, "工具调用")
	assert.Contains(t, instructions, "STOP and WAIT")
}
