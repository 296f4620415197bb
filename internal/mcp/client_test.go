package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer answers initialize, tools/list, and tools/call over a pipe
// pair, interleaving non-JSON log lines the way real stdio servers do.
func mockServer(t *testing.T, in io.Reader, out io.WriteCloser) {
	t.Helper()
	defer out.Close()
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := scanner.Text()
		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			continue
		}

		// Noise before every reply: the transport must skip these.
		fmt.Fprintln(out, "[mock-server] handling "+req.Method)

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "mock", "version": "0.1"},
			}
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{
					{"name": "echo", "description": "echoes the message", "inputSchema": map[string]any{"type": "object"}},
				},
			}
		case "tools/call":
			var params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			}
			_ = json.Unmarshal(req.Params, &params)
			message, _ := params.Arguments["message"].(string)
			result = map[string]any{
				"content": []map[string]any{{"type": "text", "text": message}},
			}
		default:
			resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &JSONRPCError{Code: -32601, Message: "method not found"}}
			raw, _ := json.Marshal(resp)
			fmt.Fprintln(out, string(raw))
			continue
		}

		raw, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		fmt.Fprintln(out, string(raw))
	}
}

func newMockClient(t *testing.T) *Client {
	t.Helper()

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	go mockServer(t, clientToServerR, serverToClientW)

	transport := NewStdioTransportFromPipes("mock", clientToServerW, serverToClientR)
	client := NewClientWithTransport(&ServerConfig{ID: "mock"}, transport)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	client := newMockClient(t)
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	text, isError, err := client.CallTool(ctx, "echo", map[string]any{"message": "hello world"})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, "hello world", text)
}

func TestClientSurvivesInterleavedLogLines(t *testing.T) {
	client := newMockClient(t)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	// Several calls in a row, each preceded by a junk line server-side.
	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("message %d", i)
		text, _, err := client.CallTool(ctx, "echo", map[string]any{"message": msg})
		require.NoError(t, err)
		assert.Equal(t, msg, text)
	}
}

func TestClientUnknownMethodError(t *testing.T) {
	client := newMockClient(t)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	transport := client.transport
	_, err := transport.Call(ctx, "no/such/method", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}
