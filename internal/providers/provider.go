// Package providers implements the chat-completion provider abstraction:
// one interface, many wire formats. Adapters exist for the Anthropic
// Messages API, Anthropic-compatible endpoints (MiniMax, the Claude CLI
// bridge), OpenAI-compatible chat completions, DashScope, and Ollama.
//
// Each adapter declares a ToolCallReliability tag; the orchestrator's
// prompt composition and fallback-parser selection are driven entirely by
// that tag, so a new provider slots in by implementing Provider and
// declaring its reliability.
package providers

import (
	"context"
	"fmt"

	"github.com/loomhq/loom/pkg/models"
)

// Provider is the capability set every chat-completion backend exposes.
//
// SendMessage is a single non-streaming round trip. StreamMessage writes
// UnifiedStreamEvents to the bounded sender as they arrive and returns the
// final aggregated response once the stream completes. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Name returns the stable lowercase provider identifier used in
	// routing, logging, and error prefixes.
	Name() string

	// Model returns the configured model id.
	Model() string

	SupportsThinking() bool
	SupportsTools() bool
	SupportsMultimodal() bool

	// ContextWindow returns the model's context size in tokens.
	ContextWindow() int

	// ToolCallReliability reports the provider's declared ability to emit
	// structured tool calls.
	ToolCallReliability() models.ToolCallReliability

	// DefaultFallbackMode is the fallback behaviour used when the
	// orchestrator config carries no override.
	DefaultFallbackMode() models.FallbackMode

	// SendMessage performs one non-streaming completion.
	SendMessage(ctx context.Context, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error)

	// StreamMessage performs one streaming completion, emitting unified
	// events through sender and returning the aggregated response.
	StreamMessage(ctx context.Context, sender models.StreamSender, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error)

	// HealthCheck performs a minimal round trip to verify connectivity
	// and credentials.
	HealthCheck(ctx context.Context) error

	// Config returns the configuration the provider was built from.
	Config() models.ProviderConfig
}

// New constructs the adapter for the configured provider kind.
func New(cfg models.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case models.ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case models.ProviderMiniMax:
		return NewAnthropicCompatProvider(cfg, "minimax")
	case models.ProviderClaudeCLI:
		return NewAnthropicCompatProvider(cfg, "claude_cli")
	case models.ProviderOpenAICompat:
		return NewOpenAICompatProvider(cfg, "openai_compat")
	case models.ProviderDashScope:
		return NewDashScopeProvider(cfg)
	case models.ProviderOllama:
		return NewOllamaProvider(cfg)
	default:
		return nil, &CoreError{Kind: KindInvalidConfig, Component: string(cfg.Kind), Message: fmt.Sprintf("unknown provider kind %q", cfg.Kind)}
	}
}

// Capability is the read-only capability summary returned by the CLI
// provider listing.
type Capability struct {
	Kind                models.ProviderKind        `json:"kind"`
	Name                string                     `json:"name"`
	SupportsThinking    bool                       `json:"supports_thinking"`
	SupportsTools       bool                       `json:"supports_tools"`
	SupportsMultimodal  bool                       `json:"supports_multimodal"`
	ToolCallReliability models.ToolCallReliability `json:"tool_call_reliability"`
	DefaultFallbackMode models.FallbackMode        `json:"default_fallback_mode"`
}

// Capabilities lists the built-in provider kinds with their static
// capability tags, without instantiating network clients.
func Capabilities() []Capability {
	return []Capability{
		{Kind: models.ProviderAnthropic, Name: "anthropic", SupportsThinking: true, SupportsTools: true, SupportsMultimodal: true, ToolCallReliability: models.ReliabilityReliable, DefaultFallbackMode: models.FallbackOff},
		{Kind: models.ProviderMiniMax, Name: "minimax", SupportsThinking: true, SupportsTools: true, SupportsMultimodal: false, ToolCallReliability: models.ReliabilityUnreliable, DefaultFallbackMode: models.FallbackSoft},
		{Kind: models.ProviderClaudeCLI, Name: "claude_cli", SupportsThinking: true, SupportsTools: true, SupportsMultimodal: false, ToolCallReliability: models.ReliabilityReliable, DefaultFallbackMode: models.FallbackOff},
		{Kind: models.ProviderOpenAICompat, Name: "openai_compat", SupportsThinking: false, SupportsTools: true, SupportsMultimodal: true, ToolCallReliability: models.ReliabilityUnreliable, DefaultFallbackMode: models.FallbackSoft},
		{Kind: models.ProviderDashScope, Name: "dashscope", SupportsThinking: true, SupportsTools: true, SupportsMultimodal: false, ToolCallReliability: models.ReliabilityUnreliable, DefaultFallbackMode: models.FallbackSoft},
		{Kind: models.ProviderOllama, Name: "ollama", SupportsThinking: false, SupportsTools: false, SupportsMultimodal: false, ToolCallReliability: models.ReliabilityNone, DefaultFallbackMode: models.FallbackSoft},
	}
}
