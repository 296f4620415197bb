package models

import "encoding/json"

// ProviderKind names a chat-completion backend family.
type ProviderKind string

const (
	ProviderAnthropic       ProviderKind = "anthropic"
	ProviderMiniMax         ProviderKind = "minimax"
	ProviderClaudeCLI       ProviderKind = "claude_cli"
	ProviderOpenAICompat    ProviderKind = "openai_compat"
	ProviderDashScope       ProviderKind = "dashscope"
	ProviderOllama          ProviderKind = "ollama"
)

// ToolCallReliability is a provider's declared ability to emit structured
// tool calls. The orchestrator's prompt composition and parser selection
// are driven entirely by this tag.
type ToolCallReliability string

const (
	// ReliabilityReliable providers emit native tool_use blocks the core
	// may trust.
	ReliabilityReliable ToolCallReliability = "reliable"

	// ReliabilityUnreliable providers advertise tool support but
	// historically emit malformed or free-form calls.
	ReliabilityUnreliable ToolCallReliability = "unreliable"

	// ReliabilityNone providers have no native tool channel.
	ReliabilityNone ToolCallReliability = "none"
)

// FallbackMode controls injection of prompt-based tool-call instructions.
type FallbackMode string

const (
	// FallbackAuto defers to the provider's reliability tag.
	FallbackAuto FallbackMode = "auto"

	// FallbackSoft forces instruction injection even for reliable
	// providers.
	FallbackSoft FallbackMode = "soft"

	// FallbackOff always suppresses instruction injection.
	FallbackOff FallbackMode = "off"
)

// ToolCallMode is the per-request tool_choice hint.
type ToolCallMode string

const (
	ToolCallAuto     ToolCallMode = "auto"
	ToolCallRequired ToolCallMode = "required"
)

// ProxyConfig carries the HTTP proxy settings handed to the client factory.
type ProxyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// ProviderConfig configures one provider instance.
type ProviderConfig struct {
	Kind           ProviderKind `json:"kind" yaml:"kind"`
	APIKey         string       `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model          string       `json:"model" yaml:"model"`
	BaseURL        string       `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	MaxTokens      int          `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature    *float64     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	EnableThinking bool         `json:"enable_thinking,omitempty" yaml:"enable_thinking,omitempty"`
	ThinkingBudget int          `json:"thinking_budget,omitempty" yaml:"thinking_budget,omitempty"`
	Proxy          *ProxyConfig `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// FallbackMode overrides the provider's default tool-call fallback
	// behaviour when non-empty.
	FallbackMode FallbackMode `json:"fallback_tool_format_mode,omitempty" yaml:"fallback_tool_format_mode,omitempty"`
}

// RequestOptions are per-call overrides passed alongside the history.
type RequestOptions struct {
	Temperature  *float64     `json:"temperature,omitempty"`
	ToolCallMode ToolCallMode `json:"tool_call_mode,omitempty"`
}

// ToolDefinition describes a tool the model may call. Definitions are
// registered once at startup; the registry is immutable afterwards.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}
