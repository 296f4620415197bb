package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loomhq/loom/pkg/models"
)

// promptCachingBeta is the beta header advertising prompt-cache support
// on the Messages API.
const promptCachingBeta = "prompt-caching-2024-07-31"

// AnthropicProvider talks to the native Anthropic Messages API through
// the official SDK.
//
// Wire rules this adapter preserves:
//   - The system prompt is sent as a single structured block carrying an
//     ephemeral cache_control hint.
//   - When tools are present, only the last tool carries cache_control.
//   - Temperature is omitted entirely when extended thinking is enabled.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    models.ProviderConfig
}

// NewAnthropicProvider creates the native Anthropic adapter.
func NewAnthropicProvider(cfg models.ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, &CoreError{Kind: KindInvalidConfig, Component: "anthropic", Message: "API key is required"}
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHeader("anthropic-beta", promptCachingBeta),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.cfg.Model }

func (p *AnthropicProvider) SupportsThinking() bool   { return true }
func (p *AnthropicProvider) SupportsTools() bool      { return true }
func (p *AnthropicProvider) SupportsMultimodal() bool { return true }

func (p *AnthropicProvider) ContextWindow() int { return ContextWindowFor(p.cfg.Model) }

func (p *AnthropicProvider) ToolCallReliability() models.ToolCallReliability {
	return models.ReliabilityReliable
}

func (p *AnthropicProvider) DefaultFallbackMode() models.FallbackMode { return models.FallbackOff }

func (p *AnthropicProvider) Config() models.ProviderConfig { return p.cfg }

// HealthCheck sends a minimal single-token request.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	if err != nil {
		return p.wrapError(err)
	}
	return nil
}

// SendMessage performs one non-streaming round trip.
func (p *AnthropicProvider) SendMessage(ctx context.Context, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	params, err := p.buildParams(messages, system, tools, opts)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	resp := &models.LlmResponse{
		Model:      string(msg.Model),
		StopReason: mapAnthropicStop(string(msg.StopReason)),
		Usage: models.UsageStats{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}

	var content, thinking strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		case anthropic.ThinkingBlock:
			thinking.WriteString(variant.Thinking)
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	resp.Content = content.String()
	resp.Thinking = thinking.String()

	return resp, nil
}

// StreamMessage streams unified events through sender and returns the
// aggregated response.
func (p *AnthropicProvider) StreamMessage(ctx context.Context, sender models.StreamSender, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	params, err := p.buildParams(messages, system, tools, opts)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	resp := &models.LlmResponse{Model: p.cfg.Model, StopReason: models.StopEndTurn}
	var content, thinking, toolInput strings.Builder
	var currentTool *models.ToolCall
	inThinking := false

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage := models.UsageStats{
				InputTokens:         int(start.Message.Usage.InputTokens),
				CacheReadTokens:     int(start.Message.Usage.CacheReadInputTokens),
				CacheCreationTokens: int(start.Message.Usage.CacheCreationInputTokens),
			}
			resp.Usage.Merge(usage)
			sender.Send(models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			switch blockStart.ContentBlock.Type {
			case "thinking":
				inThinking = true
				sender.Send(models.UnifiedStreamEvent{Type: models.EventThinkingStart})
			case "tool_use":
				toolUse := blockStart.ContentBlock.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				toolInput.Reset()
				sender.Send(models.UnifiedStreamEvent{Type: models.EventToolStart, ToolID: toolUse.ID, ToolName: toolUse.Name})
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					sender.Send(models.UnifiedStreamEvent{Type: models.EventTextDelta, Text: delta.Text})
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					thinking.WriteString(delta.Thinking)
					sender.Send(models.UnifiedStreamEvent{Type: models.EventThinkingDelta, Text: delta.Thinking})
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					if currentTool != nil {
						sender.Send(models.UnifiedStreamEvent{Type: models.EventToolInputDelta, ToolID: currentTool.ID, InputDelta: delta.PartialJSON})
					}
				}
			}

		case "content_block_stop":
			if inThinking {
				inThinking = false
				sender.Send(models.UnifiedStreamEvent{Type: models.EventThinkingEnd})
			} else if currentTool != nil {
				var args map[string]any
				if raw := toolInput.String(); raw != "" {
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						args = map[string]any{}
					}
				} else {
					args = map[string]any{}
				}
				currentTool.Arguments = args
				resp.ToolCalls = append(resp.ToolCalls, *currentTool)
				sender.Send(models.UnifiedStreamEvent{Type: models.EventToolComplete, ToolID: currentTool.ID, ToolName: currentTool.Name, Call: currentTool})
				currentTool = nil
			}

		case "message_delta":
			msgDelta := event.AsMessageDelta()
			if msgDelta.Delta.StopReason != "" {
				resp.StopReason = mapAnthropicStop(string(msgDelta.Delta.StopReason))
			}
			if msgDelta.Usage.OutputTokens > 0 {
				usage := models.UsageStats{OutputTokens: int(msgDelta.Usage.OutputTokens)}
				resp.Usage.Merge(usage)
				sender.Send(models.UnifiedStreamEvent{Type: models.EventUsage, Usage: &usage})
			}

		case "message_stop":
			sender.Send(models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: resp.StopReason})
			resp.Content = content.String()
			resp.Thinking = thinking.String()
			return resp, nil
		}
	}

	if err := stream.Err(); err != nil {
		wrapped := p.wrapError(err)
		sender.Send(models.UnifiedStreamEvent{Type: models.EventError, Message: wrapped.Error(), Code: string(KindOf(wrapped))})
		resp.Content = content.String()
		resp.Thinking = thinking.String()
		return resp, wrapped
	}

	resp.Content = content.String()
	resp.Thinking = thinking.String()
	return resp, nil
}

func (p *AnthropicProvider) buildParams(messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (anthropic.MessageNewParams, error) {
	converted, err := convertAnthropicMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		Messages:  converted,
		MaxTokens: int64(p.cfg.MaxTokens),
	}

	// System prompt as one structured block with an ephemeral cache hint.
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Type:         "text",
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	if len(tools) > 0 {
		converted, err := convertAnthropicTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = converted
		if opts.ToolCallMode == models.ToolCallRequired {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}

	if p.cfg.EnableThinking {
		budget := int64(p.cfg.ThinkingBudget)
		if budget < 1024 {
			budget = 10_000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	} else {
		// Temperature is incompatible with extended thinking; only set it
		// when thinking is off.
		if opts.Temperature != nil {
			params.Temperature = anthropic.Float(*opts.Temperature)
		} else if p.cfg.Temperature != nil {
			params.Temperature = anthropic.Float(*p.cfg.Temperature)
		}
	}

	return params, nil
}

// convertAnthropicMessages translates the internal block model into SDK
// message params. System messages are skipped; they travel separately.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					content = append(content, anthropic.NewTextBlock(block.Text))
				}
			case models.BlockThinking:
				// Thinking blocks are never replayed to the API.
			case models.BlockToolUse:
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(block.ID, input, block.Name))
			case models.BlockToolResult, models.BlockToolResultMultimodal:
				content = append(content, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			case models.BlockImage:
				content = append(content, anthropic.NewImageBlockBase64(block.MediaType, block.Data))
			}
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// convertAnthropicTools translates tool definitions; only the final tool
// carries the ephemeral cache_control hint.
func convertAnthropicTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))

	for i, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		if i == len(tools)-1 {
			param.OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		result = append(result, param)
	}

	return result, nil
}

func mapAnthropicStop(reason string) models.StopReason {
	switch reason {
	case "end_turn":
		return models.StopEndTurn
	case "max_tokens":
		return models.StopMaxTokens
	case "stop_sequence":
		return models.StopStopSequence
	case "tool_use":
		return models.StopToolUse
	case "":
		return models.StopEndTurn
	default:
		return models.StopOther(reason)
	}
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return MapHTTPStatus("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	return WrapNetworkError("anthropic", err)
}
