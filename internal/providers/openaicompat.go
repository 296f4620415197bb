package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loomhq/loom/internal/streaming"
	"github.com/loomhq/loom/pkg/models"
)

// OpenAICompatProvider speaks OpenAI-style chat completions. It covers
// generic OpenAI-compatible endpoints (Qwen, DeepSeek, GLM behind their
// compatible gateways) and backs the DashScope adapter.
//
// Message flattening rules: assistant messages carrying tool calls
// serialise `tool_calls` with stringified JSON arguments; tool results
// become role="tool" messages keyed by tool_call_id; images and
// multimodal tool results are downgraded to text where unsupported.
type OpenAICompatProvider struct {
	client *openai.Client
	cfg    models.ProviderConfig
	name   string

	supportsThinking bool
	multimodal       bool
}

// NewOpenAICompatProvider builds the adapter with the given component
// name.
func NewOpenAICompatProvider(cfg models.ProviderConfig, name string) (*OpenAICompatProvider, error) {
	if cfg.APIKey == "" {
		return nil, &CoreError{Kind: KindInvalidConfig, Component: name, Message: "API key is required"}
	}
	if cfg.Model == "" {
		return nil, &CoreError{Kind: KindInvalidConfig, Component: name, Message: "model is required"}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAICompatProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		cfg:        cfg,
		name:       name,
		multimodal: true,
	}, nil
}

// NewDashScopeProvider builds the DashScope adapter over the
// OpenAI-compatible endpoint, with `reasoning_content` bridged into the
// thinking channel.
func NewDashScopeProvider(cfg models.ProviderConfig) (*OpenAICompatProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	p, err := NewOpenAICompatProvider(cfg, "qwen")
	if err != nil {
		return nil, err
	}
	p.supportsThinking = true
	p.multimodal = false
	return p, nil
}

func (p *OpenAICompatProvider) Name() string  { return p.name }
func (p *OpenAICompatProvider) Model() string { return p.cfg.Model }

func (p *OpenAICompatProvider) SupportsThinking() bool   { return p.supportsThinking }
func (p *OpenAICompatProvider) SupportsTools() bool      { return true }
func (p *OpenAICompatProvider) SupportsMultimodal() bool { return p.multimodal }

func (p *OpenAICompatProvider) ContextWindow() int { return ContextWindowFor(p.cfg.Model) }

func (p *OpenAICompatProvider) ToolCallReliability() models.ToolCallReliability {
	return models.ReliabilityUnreliable
}

func (p *OpenAICompatProvider) DefaultFallbackMode() models.FallbackMode {
	return models.FallbackSoft
}

func (p *OpenAICompatProvider) Config() models.ProviderConfig { return p.cfg }

// HealthCheck lists nothing; it sends a one-token completion because
// several compatible gateways do not implement the models endpoint.
func (p *OpenAICompatProvider) HealthCheck(ctx context.Context) error {
	req := openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		MaxTokens: 1,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
	}
	if _, err := p.client.CreateChatCompletion(ctx, req); err != nil {
		return p.wrapError(err)
	}
	return nil
}

// SendMessage performs one non-streaming round trip.
func (p *OpenAICompatProvider) SendMessage(ctx context.Context, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	req := p.buildRequest(messages, system, tools, opts, false)

	completion, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}

	resp := &models.LlmResponse{
		Model:      completion.Model,
		StopReason: models.StopEndTurn,
		Usage: models.UsageStats{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	if resp.Model == "" {
		resp.Model = p.cfg.Model
	}

	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Content = choice.Message.Content
		resp.Thinking = choice.Message.ReasoningContent
		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			resp.StopReason = models.StopToolUse
		case openai.FinishReasonLength:
			resp.StopReason = models.StopMaxTokens
		}
		for _, tc := range choice.Message.ToolCalls {
			args := map[string]any{}
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
	}

	return resp, nil
}

// StreamMessage streams unified events through sender.
func (p *OpenAICompatProvider) StreamMessage(ctx context.Context, sender models.StreamSender, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	req := p.buildRequest(messages, system, tools, opts, true)

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}
	defer stream.Close()

	adapter := streaming.NewOpenAIAdapter(p.name)
	resp := &models.LlmResponse{Model: p.cfg.Model, StopReason: models.StopEndTurn}
	var content, thinking strings.Builder

	apply := func(events []models.UnifiedStreamEvent) {
		for _, ev := range events {
			switch ev.Type {
			case models.EventTextDelta:
				content.WriteString(ev.Text)
			case models.EventThinkingDelta:
				thinking.WriteString(ev.Text)
			case models.EventToolComplete:
				if ev.Call != nil {
					resp.ToolCalls = append(resp.ToolCalls, *ev.Call)
				}
			case models.EventUsage:
				if ev.Usage != nil {
					streaming.AccumulateUsage(&resp.Usage, *ev.Usage)
				}
			case models.EventComplete:
				if ev.StopReason != "" {
					resp.StopReason = ev.StopReason
				}
			}
			sender.Send(ev)
		}
	}

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				apply(adapter.Finish())
				break
			}
			apply(adapter.Finish())
			resp.Content = content.String()
			resp.Thinking = thinking.String()
			wrapped := p.wrapError(err)
			sender.Send(models.UnifiedStreamEvent{Type: models.EventError, Message: wrapped.Error(), Code: string(KindOf(wrapped))})
			return resp, wrapped
		}

		// Re-serialise the SDK chunk so the shared adapter owns all
		// framing state (tool buffering, thinking bridging, dedup).
		raw, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		apply(adapter.ProcessLine(string(raw)))
	}

	resp.Content = content.String()
	resp.Thinking = thinking.String()
	return resp, nil
}

func (p *OpenAICompatProvider) buildRequest(messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		Messages:  p.flattenMessages(messages, system),
		MaxTokens: p.cfg.MaxTokens,
		Stream:    stream,
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	} else if p.cfg.Temperature != nil {
		req.Temperature = float32(*p.cfg.Temperature)
	}

	if len(tools) > 0 {
		for _, tool := range tools {
			var schema map[string]any
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  schema,
				},
			})
		}
		if opts.ToolCallMode == models.ToolCallRequired {
			req.ToolChoice = "required"
		}
	}

	return req
}

// flattenMessages converts block-structured history into the flat
// role/content shape OpenAI-style endpoints expect.
func (p *OpenAICompatProvider) flattenMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.TextContent()})

		case models.RoleAssistant:
			out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.TextContent()}
			for _, block := range msg.Content {
				if block.Type != models.BlockToolUse {
					continue
				}
				args, err := json.Marshal(block.Input)
				if err != nil {
					args = []byte("{}")
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:       block.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: block.Name, Arguments: string(args)},
				})
			}
			result = append(result, out)

		default:
			// Tool results split into one role="tool" message each; any
			// remaining text and images become a user message.
			var text strings.Builder
			var parts []openai.ChatMessagePart
			for _, block := range msg.Content {
				switch block.Type {
				case models.BlockToolResult:
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    block.Content,
						ToolCallID: block.ToolUseID,
					})
				case models.BlockToolResultMultimodal:
					// Downgrade: the compatible wire has no multimodal
					// tool-result shape.
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    multimodalToText(block),
						ToolCallID: block.ToolUseID,
					})
				case models.BlockText:
					text.WriteString(block.Text)
				case models.BlockImage:
					if p.multimodal {
						parts = append(parts, openai.ChatMessagePart{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL:    fmt.Sprintf("data:%s;base64,%s", block.MediaType, block.Data),
								Detail: openai.ImageURLDetailAuto,
							},
						})
					} else {
						text.WriteString("[image omitted: " + block.MediaType + "]")
					}
				}
			}

			if len(parts) > 0 {
				if text.Len() > 0 {
					parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text.String()}}, parts...)
				}
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
			} else if text.Len() > 0 {
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text.String()})
			}
		}
	}

	return result
}

func multimodalToText(block models.ContentBlock) string {
	var out strings.Builder
	out.WriteString(block.Content)
	for _, part := range block.Parts {
		switch part.Type {
		case models.BlockText:
			out.WriteString(part.Text)
		case models.BlockImage:
			out.WriteString("[image omitted: " + part.MediaType + "]")
		}
	}
	return out.String()
}

func (p *OpenAICompatProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return MapHTTPStatus(p.name, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return WrapNetworkError(p.name, err)
}
