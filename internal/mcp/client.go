package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client drives one MCP server through a transport: initialize,
// tools/list, tools/call.
type Client struct {
	config    *ServerConfig
	transport Transport
}

// NewClient selects the transport from the config: BaseURL → HTTP,
// otherwise stdio.
func NewClient(cfg *ServerConfig) *Client {
	var transport Transport
	if cfg.BaseURL != "" {
		transport = NewHTTPTransport(cfg)
	} else {
		transport = NewStdioTransport(cfg)
	}
	return &Client{config: cfg, transport: transport}
}

// NewClientWithTransport wires an explicit transport; tests use it with
// pipe-backed stdio.
func NewClientWithTransport(cfg *ServerConfig, transport Transport) *Client {
	return &Client{config: cfg, transport: transport}
}

// Connect opens the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	_, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "loom", "version": "1.0"},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	return nil
}

// Close shuts the transport down.
func (c *Client) Close() error { return c.transport.Close() }

// ListTools returns the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return wire.Tools, nil
}

// CallTool invokes one tool and flattens its text content.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, bool, error) {
	result, err := c.transport.Call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return "", false, err
	}

	var wire ToolCallResult
	if err := json.Unmarshal(result, &wire); err != nil {
		return "", false, fmt.Errorf("decode tools/call: %w", err)
	}

	var text strings.Builder
	for _, part := range wire.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), wire.IsError, nil
}
