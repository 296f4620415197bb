// Package models defines the shared data model for the Loom orchestration
// core: conversation messages and content blocks, provider responses and
// usage accounting, the unified stream-event alphabet, tool definitions,
// artifacts, the file/symbol inventory, and remote gateway types.
package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentBlockType discriminates the variants of a ContentBlock.
type ContentBlockType string

const (
	BlockText                ContentBlockType = "text"
	BlockToolUse             ContentBlockType = "tool_use"
	BlockToolResult          ContentBlockType = "tool_result"
	BlockThinking            ContentBlockType = "thinking"
	BlockImage               ContentBlockType = "image"
	BlockToolResultMultimodal ContentBlockType = "tool_result_multimodal"
)

// ContentBlock is a tagged variant inside a Message. Exactly the fields
// relevant to Type are populated; the rest are zero and omitted from JSON.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text carries the content for text and thinking blocks.
	Text string `json:"text,omitempty"`

	// ToolUse fields.
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// ToolResult fields. ToolUseID refers back to the ToolUse block this
	// result answers.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// Image fields (base64 payload).
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	// Parts carries the mixed content of a multimodal tool result.
	Parts []ContentBlock `json:"parts,omitempty"`
}

// Message is one entry in a conversation: a role plus an ordered sequence
// of content blocks. A ToolUse block must be answered by a ToolResult with
// a matching tool_use_id in a later user message before the assistant may
// reuse the same id.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// NewToolResultMessage builds the user message that feeds a tool result
// back into the conversation.
func NewToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{{
		Type:      BlockToolResult,
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}}}
}

// TextContent concatenates the text blocks of the message.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of the message in order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// StopReason reports why the provider stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
)

// StopOther wraps a provider-specific stop reason that has no canonical
// mapping.
func StopOther(s string) StopReason { return StopReason("other:" + s) }

// ToolCall is a structured tool invocation extracted from a response,
// either from a native tool_use block or from the fallback parser.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// UsageStats counts tokens consumed by a request. All buckets are
// optional on the wire; a missing bucket counts as zero.
type UsageStats struct {
	InputTokens         int `json:"input_tokens,omitempty"`
	OutputTokens        int `json:"output_tokens,omitempty"`
	ThinkingTokens      int `json:"thinking_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// Merge adds other into u. Merging is additive across every bucket.
func (u *UsageStats) Merge(other UsageStats) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ThinkingTokens += other.ThinkingTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
}

// Total returns the sum of all buckets.
func (u UsageStats) Total() int {
	return u.InputTokens + u.OutputTokens + u.ThinkingTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Citation is a web-search citation attached to a response.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// LlmResponse is the aggregated result of one provider round trip.
type LlmResponse struct {
	Content    string     `json:"content,omitempty"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason StopReason `json:"stop_reason"`
	Usage      UsageStats `json:"usage"`
	Model      string     `json:"model,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
}
