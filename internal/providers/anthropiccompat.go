package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomhq/loom/internal/httpx"
	"github.com/loomhq/loom/internal/streaming"
	"github.com/loomhq/loom/pkg/models"
)

// Default Anthropic-compatible endpoints.
const (
	MiniMaxGlobalBaseURL = "https://api.minimax.io/anthropic"
	MiniMaxChinaBaseURL  = "https://api.minimaxi.com/anthropic"

	anthropicVersion = "2023-06-01"
)

// AnthropicCompatProvider speaks the Anthropic Messages wire format
// against compatible endpoints: MiniMax (global and China) and the local
// Claude CLI bridge. It builds request bodies by hand because these
// endpoints accept shapes the SDK cannot express (plain-string system
// prompts, no cache_control).
type AnthropicCompatProvider struct {
	cfg         models.ProviderConfig
	name        string
	client      *http.Client
	messagesURL string
}

// NewAnthropicCompatProvider builds the adapter. name is the component
// label used in errors ("minimax" or "claude_cli").
func NewAnthropicCompatProvider(cfg models.ProviderConfig, name string) (*AnthropicCompatProvider, error) {
	if cfg.Model == "" {
		return nil, &CoreError{Kind: KindInvalidConfig, Component: name, Message: "model is required"}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = MiniMaxGlobalBaseURL
	}
	base := NormalizeBaseURL(raw)

	return &AnthropicCompatProvider{
		cfg:         cfg,
		name:        name,
		client:      httpx.NewClientWithTimeout(cfg.Proxy, 0),
		messagesURL: base + "/v1/messages",
	}, nil
}

// NormalizeBaseURL rewrites every accepted base-URL shape to
// `<host>/anthropic`. Accepted inputs: OpenAI-style
// `/v1/chat/completions`, `/anthropic/v1`, `/anthropic/v1/messages`,
// trailing slash, and host-only forms. The function is idempotent.
func NormalizeBaseURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")

	// A /v1 path without /anthropic means the user configured an
	// OpenAI-compatible endpoint; keep the host, switch the path.
	if strings.Contains(url, "/v1") && !strings.Contains(url, "/anthropic") {
		if pos := strings.Index(url, "/v1"); pos >= 0 {
			host := strings.TrimRight(url[:pos], "/")
			return host + "/anthropic"
		}
	}

	base := strings.TrimSuffix(url, "/messages")
	base = strings.TrimSuffix(base, "/v1")
	base = strings.TrimRight(base, "/")

	if !strings.Contains(base, "/anthropic") {
		return base + "/anthropic"
	}
	return base
}

func (p *AnthropicCompatProvider) Name() string  { return p.name }
func (p *AnthropicCompatProvider) Model() string { return p.cfg.Model }

func (p *AnthropicCompatProvider) SupportsThinking() bool {
	return strings.Contains(strings.ToLower(p.cfg.Model), "minimax-m2") || p.name == "claude_cli"
}
func (p *AnthropicCompatProvider) SupportsTools() bool      { return true }
func (p *AnthropicCompatProvider) SupportsMultimodal() bool { return false }

func (p *AnthropicCompatProvider) ContextWindow() int { return ContextWindowFor(p.cfg.Model) }

func (p *AnthropicCompatProvider) ToolCallReliability() models.ToolCallReliability {
	if p.name == "claude_cli" {
		return models.ReliabilityReliable
	}
	return models.ReliabilityUnreliable
}

func (p *AnthropicCompatProvider) DefaultFallbackMode() models.FallbackMode {
	if p.ToolCallReliability() == models.ReliabilityReliable {
		return models.FallbackOff
	}
	return models.FallbackSoft
}

func (p *AnthropicCompatProvider) Config() models.ProviderConfig { return p.cfg }

// HealthCheck performs a minimal one-token request.
func (p *AnthropicCompatProvider) HealthCheck(ctx context.Context) error {
	body := p.buildRequestBody([]models.Message{models.NewTextMessage(models.RoleUser, "ping")}, "", nil, false, models.RequestOptions{})
	body["max_tokens"] = 1
	_, err := p.post(ctx, body)
	return err
}

// SendMessage performs one non-streaming round trip.
func (p *AnthropicCompatProvider) SendMessage(ctx context.Context, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	body := p.buildRequestBody(messages, system, tools, false, opts)

	data, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Content    []struct {
			Type     string          `json:"type"`
			Text     string          `json:"text"`
			Thinking string          `json:"thinking"`
			ID       string          `json:"id"`
			Name     string          `json:"name"`
			Input    json.RawMessage `json:"input"`
		} `json:"content"`
		Usage struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: p.name, Cause: err}
	}

	resp := &models.LlmResponse{
		Model:      wire.Model,
		StopReason: mapAnthropicStop(wire.StopReason),
		Usage: models.UsageStats{
			InputTokens:         wire.Usage.InputTokens,
			OutputTokens:        wire.Usage.OutputTokens,
			CacheReadTokens:     wire.Usage.CacheReadInputTokens,
			CacheCreationTokens: wire.Usage.CacheCreationInputTokens,
		},
	}
	if resp.Model == "" {
		resp.Model = p.cfg.Model
	}

	var content, thinking strings.Builder
	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Content = content.String()
	resp.Thinking = thinking.String()

	return resp, nil
}

// StreamMessage drives the SSE stream through the provider's adapter.
func (p *AnthropicCompatProvider) StreamMessage(ctx context.Context, sender models.StreamSender, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	body := p.buildRequestBody(messages, system, tools, true, opts)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: p.name, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &CoreError{Kind: KindInvalidRequest, Component: p.name, Cause: err}
	}
	p.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, MapHTTPStatus(p.name, httpResp.StatusCode, string(errBody))
	}

	var adapter streaming.StreamAdapter
	if p.name == "claude_cli" {
		adapter = streaming.NewClaudeCLIAdapter()
	} else {
		adapter = streaming.NewAnthropicAdapter(p.name)
	}

	return DrainStream(ctx, httpResp.Body, adapter, sender, p.cfg.Model)
}

func (p *AnthropicCompatProvider) buildRequestBody(messages []models.Message, system string, tools []models.ToolDefinition, stream bool, opts models.RequestOptions) map[string]any {
	body := map[string]any{
		"model":      p.cfg.Model,
		"max_tokens": p.cfg.MaxTokens,
		"stream":     stream,
	}

	// Plain-string system prompt: these endpoints reject cache_control.
	if system != "" {
		body["system"] = system
	}

	var wireMessages []map[string]any
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		var blocks []map[string]any
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					blocks = append(blocks, map[string]any{"type": "text", "text": block.Text})
				}
			case models.BlockToolUse:
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{"type": "tool_use", "id": block.ID, "name": block.Name, "input": input})
			case models.BlockToolResult, models.BlockToolResultMultimodal:
				blocks = append(blocks, map[string]any{"type": "tool_result", "tool_use_id": block.ToolUseID, "content": block.Content, "is_error": block.IsError})
			case models.BlockImage:
				// No multimodal channel here; downgrade to a marker.
				blocks = append(blocks, map[string]any{"type": "text", "text": "[image omitted: " + block.MediaType + "]"})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		wireMessages = append(wireMessages, map[string]any{"role": string(msg.Role), "content": blocks})
	}
	body["messages"] = wireMessages

	if len(tools) > 0 {
		var wireTools []map[string]any
		for _, tool := range tools {
			var schema map[string]any
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				schema = map[string]any{"type": "object"}
			}
			wireTools = append(wireTools, map[string]any{
				"name":         tool.Name,
				"description":  tool.Description,
				"input_schema": schema,
			})
		}
		body["tools"] = wireTools
		if opts.ToolCallMode == models.ToolCallRequired {
			body["tool_choice"] = map[string]any{"type": "any"}
		}
	}

	if p.cfg.EnableThinking && p.SupportsThinking() {
		budget := p.cfg.ThinkingBudget
		if budget < 1024 {
			budget = 10_000
		}
		body["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
	} else if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	} else if p.cfg.Temperature != nil {
		body["temperature"] = *p.cfg.Temperature
	}

	return body
}

func (p *AnthropicCompatProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if p.cfg.APIKey != "" {
		req.Header.Set("x-api-key", p.cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

func (p *AnthropicCompatProvider) post(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: p.name, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &CoreError{Kind: KindInvalidRequest, Component: p.name, Cause: err}
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError(p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, MapHTTPStatus(p.name, resp.StatusCode, string(data))
	}
	return data, nil
}

// DrainStream runs a stream adapter over line-delimited wire output,
// forwarding every unified event to sender and aggregating the final
// response. Usage deltas fold in with last-non-zero-wins input tokens.
func DrainStream(ctx context.Context, body io.Reader, adapter streaming.StreamAdapter, sender models.StreamSender, model string) (*models.LlmResponse, error) {
	resp := &models.LlmResponse{Model: model, StopReason: models.StopEndTurn}
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

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			resp.Content = content.String()
			resp.Thinking = thinking.String()
			return resp, &CoreError{Kind: KindCancelled, Message: "stream cancelled", Cause: ctx.Err()}
		default:
		}
		apply(adapter.ProcessLine(scanner.Text()))
	}
	apply(adapter.Finish())

	if err := scanner.Err(); err != nil {
		resp.Content = content.String()
		resp.Thinking = thinking.String()
		return resp, fmt.Errorf("stream read failed: %w", err)
	}

	resp.Content = content.String()
	resp.Thinking = thinking.String()
	return resp, nil
}
