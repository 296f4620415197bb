package remote

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/db"
	"github.com/loomhq/loom/pkg/models"
)

func TestParseCommandTable(t *testing.T) {
	tests := []struct {
		in   string
		want models.RemoteCommand
	}{
		{"/new /work/app", models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/app"}},
		{"/new /work/app minimax MiniMax-M2.5", models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/app", Provider: "minimax", Model: "MiniMax-M2.5"}},
		{"/send hello there", models.RemoteCommand{Type: models.CommandSendMessage, Content: "hello there"}},
		{"just plain text", models.RemoteCommand{Type: models.CommandSendMessage, Content: "just plain text"}},
		{"/sessions", models.RemoteCommand{Type: models.CommandListSessions}},
		{"/switch abc123", models.RemoteCommand{Type: models.CommandSwitchSession, SessionID: "abc123"}},
		{"/status", models.RemoteCommand{Type: models.CommandStatus}},
		{"/cancel", models.RemoteCommand{Type: models.CommandCancel}},
		{"/close", models.RemoteCommand{Type: models.CommandCloseSession}},
		{"/help", models.RemoteCommand{Type: models.CommandHelp}},
		{"/bogus stuff", models.RemoteCommand{Type: models.CommandHelp}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.in))
		})
	}
}

func TestBackoffDelays(t *testing.T) {
	cfg := ReconnectConfig{MaxAttempts: 5, BaseDelayMs: 1000, MaxDelayMs: 30000}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for i, expected := range want {
		assert.Equal(t, expected, cfg.BackoffDelay(i+1))
	}

	// The clamp engages once the doubling passes the ceiling.
	assert.Equal(t, 30*time.Second, cfg.BackoffDelay(6))
}

func TestGatewayRefusesReconnectAfterMaxAttempts(t *testing.T) {
	g := newTestGateway(t, GatewayConfig{Reconnect: ReconnectConfig{MaxAttempts: 5, BaseDelayMs: 1000, MaxDelayMs: 30000}})

	for i := 1; i <= 5; i++ {
		assert.True(t, g.RecordConnectionError(fmt.Sprintf("err %d", i)), "attempt %d", i)
	}
	assert.False(t, g.RecordConnectionError("err 6"))

	g.ResetReconnectState()
	assert.Equal(t, 0, g.Status().ReconnectAttempts)
	assert.True(t, g.RecordConnectionError("fresh"))
}

// fakeSession is an in-memory SessionHandle.
type fakeSession struct {
	id      string
	replies []string
	mu      sync.Mutex
	sent    []string
	fail    bool
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) Send(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, content)
	s.mu.Unlock()
	if s.fail {
		return "", fmt.Errorf("task failed")
	}
	return "reply to " + content, nil
}
func (s *fakeSession) Cancel()        {}
func (s *fakeSession) Status() string { return "idle" }
func (s *fakeSession) Close()         {}

func newFakeFactory(fail bool) SessionFactory {
	n := 0
	return func(projectPath, provider, model string) (SessionHandle, error) {
		n++
		return &fakeSession{id: fmt.Sprintf("s%d", n), fail: fail}, nil
	}
}

func TestBridgePathAllowList(t *testing.T) {
	bridge := NewSessionBridge(newFakeFactory(false), []string{"/work/allowed"})
	ctx := context.Background()

	_, err := bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandNewSession, Path: "/tmp/evil"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	reply, err := bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/allowed/app"})
	require.NoError(t, err)
	assert.Contains(t, reply, "started")
}

func TestBridgeSessionLifecycle(t *testing.T) {
	bridge := NewSessionBridge(newFakeFactory(false), []string{"/work"})
	ctx := context.Background()

	_, err := bridge.Execute(ctx, 7, models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/a"})
	require.NoError(t, err)

	reply, err := bridge.Execute(ctx, 7, models.RemoteCommand{Type: models.CommandSendMessage, Content: "do it"})
	require.NoError(t, err)
	assert.Equal(t, "reply to do it", reply)

	list, err := bridge.Execute(ctx, 7, models.RemoteCommand{Type: models.CommandListSessions})
	require.NoError(t, err)
	assert.Contains(t, list, "s1")

	mappings := bridge.Mappings()
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(7), mappings[0].ChatID)
	assert.Equal(t, "s1", mappings[0].SessionID)

	_, err = bridge.Execute(ctx, 7, models.RemoteCommand{Type: models.CommandCloseSession})
	require.NoError(t, err)
	assert.Empty(t, bridge.Mappings())

	_, err = bridge.Execute(ctx, 7, models.RemoteCommand{Type: models.CommandSendMessage, Content: "x"})
	require.Error(t, err)
}

func TestBridgeSwitchSession(t *testing.T) {
	bridge := NewSessionBridge(newFakeFactory(false), []string{"/work"})
	ctx := context.Background()

	_, err := bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/a"})
	require.NoError(t, err)
	_, err = bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandNewSession, Path: "/work/b"})
	require.NoError(t, err)

	reply, err := bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandSwitchSession, SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, reply, "s1")

	_, err = bridge.Execute(ctx, 1, models.RemoteCommand{Type: models.CommandSwitchSession, SessionID: "nope"})
	require.Error(t, err)
}

// fakeAdapter records replies without any transport.
type fakeAdapter struct {
	mu      sync.Mutex
	replies []string
}

func (a *fakeAdapter) Type() string { return "fake" }
func (a *fakeAdapter) Start(ctx context.Context, messages chan<- models.IncomingRemoteMessage) error {
	<-ctx.Done()
	return ctx.Err()
}
func (a *fakeAdapter) SendReply(ctx context.Context, chatID int64, text string) error {
	a.mu.Lock()
	a.replies = append(a.replies, text)
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) lastReply() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		return ""
	}
	return a.replies[len(a.replies)-1]
}

func newTestGateway(t *testing.T, cfg GatewayConfig) *Gateway {
	t.Helper()
	handle, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	bridge := NewSessionBridge(newFakeFactory(false), []string{"/work"})
	return NewGateway(&fakeAdapter{}, bridge, NewAuditLogger(handle, nil), nil, cfg, nil)
}

func incoming(chatID int64, text string) models.IncomingRemoteMessage {
	return models.IncomingRemoteMessage{
		AdapterType: "fake", ChatID: chatID, UserID: 100, Username: "tester",
		Text: text, MessageID: 1, Timestamp: time.Now(),
	}
}

func TestGatewayPasswordGate(t *testing.T) {
	g := newTestGateway(t, GatewayConfig{RequirePassword: true, AccessPassword: "sesame"})
	adapter := g.adapter.(*fakeAdapter)
	ctx := context.Background()

	// Unauthenticated command gets the prompt.
	g.handleMessage(ctx, incoming(5, "/status"))
	assert.Contains(t, adapter.lastReply(), "Authentication required")

	// Wrong password is rejected.
	g.handleMessage(ctx, incoming(5, "/auth wrong"))
	assert.Contains(t, adapter.lastReply(), "Invalid password")

	// Correct password authenticates and subsequent commands run.
	g.handleMessage(ctx, incoming(5, "/auth sesame"))
	assert.Contains(t, adapter.lastReply(), "Authenticated")

	g.handleMessage(ctx, incoming(5, "/help"))
	assert.Contains(t, adapter.lastReply(), "Available commands")
}

func TestGatewayAuditTrail(t *testing.T) {
	handle, err := db.Open(":memory:")
	require.NoError(t, err)
	defer handle.Close()

	bridge := NewSessionBridge(newFakeFactory(false), []string{"/work"})
	adapter := &fakeAdapter{}
	g := NewGateway(adapter, bridge, NewAuditLogger(handle, nil), nil,
		GatewayConfig{RequirePassword: true, AccessPassword: "pw"}, nil)

	ctx := context.Background()
	g.handleMessage(ctx, incoming(9, "/auth nope"))
	g.handleMessage(ctx, incoming(9, "/auth pw"))
	g.handleMessage(ctx, incoming(9, "/help"))

	rows, err := handle.Query(`SELECT command_type, result_status FROM remote_audit_log ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	type entry struct{ commandType, status string }
	var entries []entry
	for rows.Next() {
		var e entry
		require.NoError(t, rows.Scan(&e.commandType, &e.status))
		entries = append(entries, e)
	}
	require.NoError(t, rows.Err())

	require.Len(t, entries, 3)
	assert.Equal(t, entry{"Auth", "unauthorized"}, entries[0])
	assert.Equal(t, entry{"Auth", "success"}, entries[1])
	assert.Equal(t, entry{"Help", "success"}, entries[2])
}

func TestGatewayErrorsIsolatedPerChat(t *testing.T) {
	handle, err := db.Open(":memory:")
	require.NoError(t, err)
	defer handle.Close()

	bridge := NewSessionBridge(newFakeFactory(true), []string{"/work"})
	adapter := &fakeAdapter{}
	g := NewGateway(adapter, bridge, NewAuditLogger(handle, nil), nil, GatewayConfig{}, nil)
	ctx := context.Background()

	g.handleMessage(ctx, incoming(1, "/new /work/a"))
	g.handleMessage(ctx, incoming(1, "boom"))
	assert.Contains(t, adapter.lastReply(), "Error:")

	// A different chat still works normally.
	g.handleMessage(ctx, incoming(2, "/help"))
	assert.Contains(t, adapter.lastReply(), "Available commands")
}
