package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFencedBlock(t *testing.T) {
	calls := ParseToolCalls("```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"file_path\":\"src/main.rs\"}}\n```")
	require.Len(t, calls, 1)
	assert.Equal(t, "Read", calls[0].ToolName)
	assert.Equal(t, "src/main.rs", calls[0].Arguments["file_path"])
}

func TestParseFencedBlockTwiceYieldsTwoCalls(t *testing.T) {
	block := "```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"file_path\":\"src/main.rs\"}}\n```"
	calls := ParseToolCalls(block + "\n" + block)
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].ToolName, calls[1].ToolName)
}

func TestParseMultipleDifferentBlocks(t *testing.T) {
	text := "first:\n```tool_call\n{\"tool\":\"LS\",\"arguments\":{\"path\":\".\"}}\n```\nthen\n```tool_call\n{\"tool\":\"Bash\",\"arguments\":{\"command\":\"go test\"}}\n```"
	calls := ParseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "LS", calls[0].ToolName)
	assert.Equal(t, "Bash", calls[1].ToolName)
}

func TestParseNoToolCalls(t *testing.T) {
	assert.Empty(t, ParseToolCalls("Just a plain answer with no calls."))
}

func TestParseInvalidJSONInFence(t *testing.T) {
	assert.Empty(t, ParseToolCalls("```tool_call\nnot json at all\n```"))
}

func TestParseMissingToolField(t *testing.T) {
	assert.Empty(t, ParseToolCalls("```tool_call\n{\"arguments\":{\"x\":1}}\n```"))
}

func TestParseXMLBlockStandard(t *testing.T) {
	calls := ParseToolCalls(`<tool_call>{"tool":"Grep","arguments":{"pattern":"main"}}</tool_call>`)
	require.Len(t, calls, 1)
	assert.Equal(t, "Grep", calls[0].ToolName)
	assert.Equal(t, "main", calls[0].Arguments["pattern"])
}

func TestParseXMLBlockNameOnly(t *testing.T) {
	calls := ParseToolCalls("<tool_call>Cwd</tool_call>")
	require.Len(t, calls, 1)
	assert.Equal(t, "Cwd", calls[0].ToolName)
	assert.Empty(t, calls[0].Arguments)
}

func TestParseXMLUnclosedTwoLenientTools(t *testing.T) {
	// "<tool_call>LS Cwd" with no closing tag yields two lenient calls
	// with empty arguments.
	calls := ParseToolCalls("<tool_call>LS Cwd")
	require.Len(t, calls, 2)
	assert.Equal(t, "LS", calls[0].ToolName)
	assert.Equal(t, "Cwd", calls[1].ToolName)
	assert.Empty(t, calls[0].Arguments)
	assert.Empty(t, calls[1].Arguments)
}

func TestParseBracketForm(t *testing.T) {
	calls := ParseToolCalls("[TOOL] Read(src/lib.rs)")
	require.Len(t, calls, 1)
	assert.Equal(t, "Read", calls[0].ToolName)
	assert.Equal(t, "src/lib.rs", calls[0].Arguments["file_path"])
}

func TestParseDirectXML(t *testing.T) {
	calls := ParseToolCalls("<Read><file_path>cmd/main.go</file_path></Read>")
	require.Len(t, calls, 1)
	assert.Equal(t, "Read", calls[0].ToolName)
	assert.Equal(t, "cmd/main.go", calls[0].Arguments["file_path"])
}

func TestParseBareFunctionCallAtLineStart(t *testing.T) {
	calls := ParseToolCalls("Read(src/main.rs)\nsome commentary")
	require.Len(t, calls, 1)
	assert.Equal(t, "src/main.rs", calls[0].Arguments["file_path"])
}

func TestParseBareFunctionCallMidLineIgnored(t *testing.T) {
	assert.Empty(t, ParseToolCalls("you could call Read(src/main.rs) here"))
}

func TestParseBareJSON(t *testing.T) {
	calls := ParseToolCalls(`{"tool":"WebSearch","arguments":{"query":"golang"}}`)
	require.Len(t, calls, 1)
	assert.Equal(t, "WebSearch", calls[0].ToolName)
}

func TestParseBareJSONWithLabel(t *testing.T) {
	calls := ParseToolCalls("tool_call:\n{\"tool\":\"LS\",\"arguments\":{\"path\":\".\"}}")
	require.Len(t, calls, 1)
	assert.Equal(t, "LS", calls[0].ToolName)
}

func TestBareJSONSuppressedByUnclosedFence(t *testing.T) {
	// An unclosed fence means the JSON is mid-stream; pass 6 must not
	// fire.
	text := "```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"file_path\":\"a.go\"}}"
	assert.Empty(t, ParseToolCalls(text))
}

func TestLaterPassesGatedByEarlierResults(t *testing.T) {
	// A fenced call present means the bracket pass must not also fire.
	text := "```tool_call\n{\"tool\":\"LS\",\"arguments\":{}}\n```\n[TOOL] Read(x.go)"
	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "LS", calls[0].ToolName)
}

func TestAliasNormalization(t *testing.T) {
	calls := ParseToolCalls("```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"path\":\"a.go\"}}\n```")
	require.Len(t, calls, 1)
	assert.Equal(t, "a.go", calls[0].Arguments["file_path"])
	assert.NotContains(t, calls[0].Arguments, "path")
}

func TestAliasNeverOverwritesCanonical(t *testing.T) {
	calls := ParseToolCalls("```tool_call\n{\"tool\":\"Read\",\"arguments\":{\"path\":\"alias.go\",\"file_path\":\"canonical.go\"}}\n```")
	require.Len(t, calls, 1)
	assert.Equal(t, "canonical.go", calls[0].Arguments["file_path"])
}

func TestInferEqualsArgs(t *testing.T) {
	calls := ParseToolCalls("[TOOL] Grep(pattern=main path=src)")
	require.Len(t, calls, 1)
	assert.Equal(t, "main", calls[0].Arguments["pattern"])
	assert.Equal(t, "src", calls[0].Arguments["path"])
}

func TestInferColonArgs(t *testing.T) {
	calls := ParseToolCalls(`[TOOL] Grep(pattern: "needle", path: src)`)
	require.Len(t, calls, 1)
	assert.Equal(t, "needle", calls[0].Arguments["pattern"])
	assert.Equal(t, "src", calls[0].Arguments["path"])
}

func TestWindowsDrivePathIsNotColonArgs(t *testing.T) {
	calls := ParseToolCalls(`[TOOL] Read(C:\work\main.rs)`)
	require.Len(t, calls, 1)
	assert.Equal(t, `C:\work\main.rs`, calls[0].Arguments["file_path"])
}

func TestGlmArgKeyPairs(t *testing.T) {
	calls := ParseToolCalls("<tool_call>Grep <arg_key>pattern</arg_key><arg_value>fn main</arg_value></tool_call>")
	require.Len(t, calls, 1)
	assert.Equal(t, "fn main", calls[0].Arguments["pattern"])
}
