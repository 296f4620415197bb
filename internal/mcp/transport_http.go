package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/loomhq/loom/internal/httpx"
)

// HTTPTransport speaks JSON-RPC over POST {base}/jsonrpc.
type HTTPTransport struct {
	config    *ServerConfig
	client    *http.Client
	endpoint  string
	nextID    atomic.Int64
	connected atomic.Bool
}

// NewHTTPTransport creates a transport for a remote MCP server.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	return &HTTPTransport{
		config:   cfg,
		client:   httpx.NewClientWithTimeout(nil, timeout),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/jsonrpc",
	}
}

// Connect verifies the configuration; HTTP needs no persistent link.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.BaseURL == "" {
		return fmt.Errorf("base_url is required for http transport")
	}
	t.connected.Store(true)
	return nil
}

// Close marks the transport disconnected.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// Connected reports transport liveness.
func (t *HTTPTransport) Connected() bool { return t.connected.Load() }

// Call performs one JSON-RPC round trip.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: t.nextID.Add(1), Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		timeout := t.config.Timeout
		if timeout == 0 {
			timeout = defaultCallTimeout
		}
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}
