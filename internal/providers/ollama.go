package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/loomhq/loom/internal/httpx"
	"github.com/loomhq/loom/internal/streaming"
	"github.com/loomhq/loom/pkg/models"
)

// OllamaProvider talks to a local Ollama daemon over /api/chat. Ollama
// has no native tool channel; the orchestrator recovers tool calls from
// text through the fallback parser.
type OllamaProvider struct {
	cfg     models.ProviderConfig
	client  *http.Client
	baseURL string
}

// NewOllamaProvider builds the adapter.
func NewOllamaProvider(cfg models.ProviderConfig) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, &CoreError{Kind: KindInvalidConfig, Component: "ollama", Message: "model is required"}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg:     cfg,
		client:  httpx.NewClientWithTimeout(cfg.Proxy, 0),
		baseURL: strings.TrimRight(base, "/"),
	}, nil
}

func (p *OllamaProvider) Name() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.cfg.Model }

func (p *OllamaProvider) SupportsThinking() bool   { return false }
func (p *OllamaProvider) SupportsTools() bool      { return false }
func (p *OllamaProvider) SupportsMultimodal() bool { return false }

func (p *OllamaProvider) ContextWindow() int { return ContextWindowFor(p.cfg.Model) }

func (p *OllamaProvider) ToolCallReliability() models.ToolCallReliability {
	return models.ReliabilityNone
}

func (p *OllamaProvider) DefaultFallbackMode() models.FallbackMode { return models.FallbackSoft }

func (p *OllamaProvider) Config() models.ProviderConfig { return p.cfg }

// HealthCheck hits the daemon's version endpoint.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/version", nil)
	if err != nil {
		return &CoreError{Kind: KindInvalidRequest, Component: "ollama", Cause: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return WrapNetworkError("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return MapHTTPStatus("ollama", resp.StatusCode, string(body))
	}
	return nil
}

// SendMessage performs one non-streaming chat call.
func (p *OllamaProvider) SendMessage(ctx context.Context, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	data, err := p.post(ctx, p.buildBody(messages, system, opts, false))
	if err != nil {
		return nil, err
	}

	var wire struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: "ollama", Cause: err}
	}

	return &models.LlmResponse{
		Content:    wire.Message.Content,
		StopReason: models.StopEndTurn,
		Model:      p.cfg.Model,
		Usage: models.UsageStats{
			InputTokens:  wire.PromptEvalCount,
			OutputTokens: wire.EvalCount,
		},
	}, nil
}

// StreamMessage streams NDJSON chat frames through the Ollama adapter.
func (p *OllamaProvider) StreamMessage(ctx context.Context, sender models.StreamSender, messages []models.Message, system string, tools []models.ToolDefinition, opts models.RequestOptions) (*models.LlmResponse, error) {
	payload, err := json.Marshal(p.buildBody(messages, system, opts, true))
	if err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: "ollama", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &CoreError{Kind: KindInvalidRequest, Component: "ollama", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, MapHTTPStatus("ollama", resp.StatusCode, string(body))
	}

	return DrainStream(ctx, resp.Body, streaming.NewOllamaAdapter(), sender, p.cfg.Model)
}

func (p *OllamaProvider) buildBody(messages []models.Message, system string, opts models.RequestOptions, stream bool) map[string]any {
	var wireMessages []map[string]any
	if system != "" {
		wireMessages = append(wireMessages, map[string]any{"role": "system", "content": system})
	}
	for _, msg := range messages {
		var text strings.Builder
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				text.WriteString(block.Text)
			case models.BlockToolResult:
				// No tool channel: results travel as plain text.
				text.WriteString(block.Content)
			}
		}
		if text.Len() == 0 {
			continue
		}
		role := string(msg.Role)
		if msg.Role == models.RoleSystem {
			role = "system"
		}
		wireMessages = append(wireMessages, map[string]any{"role": role, "content": text.String()})
	}

	body := map[string]any{
		"model":    p.cfg.Model,
		"messages": wireMessages,
		"stream":   stream,
	}
	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	} else if p.cfg.Temperature != nil {
		options["temperature"] = *p.cfg.Temperature
	}
	if p.cfg.MaxTokens > 0 {
		options["num_predict"] = p.cfg.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}
	return body
}

func (p *OllamaProvider) post(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CoreError{Kind: KindParseError, Component: "ollama", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &CoreError{Kind: KindInvalidRequest, Component: "ollama", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError("ollama", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, MapHTTPStatus("ollama", resp.StatusCode, string(data))
	}
	return data, nil
}
