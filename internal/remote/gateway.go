package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/webhook"
	"github.com/loomhq/loom/pkg/models"
)

// ReconnectConfig controls the gateway's transport retry behaviour.
type ReconnectConfig struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	BaseDelayMs int `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMs  int `json:"max_delay_ms" yaml:"max_delay_ms"`
}

// DefaultReconnectConfig returns the baseline reconnect policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{MaxAttempts: 5, BaseDelayMs: 1000, MaxDelayMs: 30000}
}

// BackoffDelay returns the sleep before reconnect attempt n (1-based):
// base * 2^(n-1), clamped to the configured maximum.
func (c ReconnectConfig) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := int64(c.BaseDelayMs) << (attempt - 1)
	if delay > int64(c.MaxDelayMs) || delay <= 0 {
		delay = int64(c.MaxDelayMs)
	}
	return time.Duration(delay) * time.Millisecond
}

// GatewayConfig configures the remote gateway.
type GatewayConfig struct {
	// RequirePassword arms the layer-4 password gate.
	RequirePassword bool `json:"require_password" yaml:"require_password"`

	// AccessPassword is the value /auth must present.
	AccessPassword string `json:"access_password,omitempty" yaml:"access_password,omitempty"`

	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// GatewayStatus is the externally visible gateway state.
type GatewayStatus struct {
	Running           bool   `json:"running"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
}

// Gateway connects one transport adapter to the session bridge,
// enforcing the password gate, writing the audit log, emitting webhooks
// for task-producing commands, and reconnecting with exponential
// backoff on transport failure.
type Gateway struct {
	adapter Adapter
	bridge  *SessionBridge
	audit   *AuditLogger
	webhook *webhook.Service
	config  GatewayConfig
	logger  *slog.Logger

	mu                sync.RWMutex
	running           bool
	reconnectAttempts int
	lastError         string
	authenticated     map[int64]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGateway wires the gateway. webhookSvc may be nil.
func NewGateway(adapter Adapter, bridge *SessionBridge, audit *AuditLogger, webhookSvc *webhook.Service, config GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Reconnect.MaxAttempts == 0 {
		config.Reconnect = DefaultReconnectConfig()
	}
	return &Gateway{
		adapter:       adapter,
		bridge:        bridge,
		audit:         audit,
		webhook:       webhookSvc,
		config:        config,
		logger:        logger.With("component", "gateway", "adapter", adapter.Type()),
		authenticated: map[int64]bool{},
	}
}

// Status returns a snapshot of the gateway state.
func (g *Gateway) Status() GatewayStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GatewayStatus{Running: g.running, ReconnectAttempts: g.reconnectAttempts, LastError: g.lastError}
}

// Start runs the adapter with reconnection until Stop or a permanent
// failure. It returns once the gateway has shut down.
func (g *Gateway) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.running = true
	g.done = make(chan struct{})
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.running = false
		close(g.done)
		g.mu.Unlock()
	}()

	messages := make(chan models.IncomingRemoteMessage, 100)

	var pumpWG sync.WaitGroup
	pumpWG.Add(1)
	go func() {
		defer pumpWG.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg := <-messages:
				// Distinct chats proceed concurrently; the bridge
				// serialises per chat.
				go g.handleMessage(runCtx, msg)
			}
		}
	}()
	defer pumpWG.Wait()
	defer cancel()

	for {
		err := g.adapter.Start(runCtx, messages)
		if runCtx.Err() != nil || errors.Is(err, context.Canceled) {
			g.ResetReconnectState()
			return nil
		}
		if err == nil {
			g.ResetReconnectState()
			continue
		}

		retry := g.RecordConnectionError(err.Error())
		if !retry {
			g.logger.Error("reconnect attempts exhausted", "error", err)
			return err
		}

		attempt := g.Status().ReconnectAttempts
		delay := g.config.Reconnect.BackoffDelay(attempt)
		g.logger.Warn("transport error, reconnecting", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Stop shuts the gateway down and resets reconnect state.
func (g *Gateway) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	g.ResetReconnectState()
}

// RecordConnectionError increments the reconnect counter and reports
// whether another attempt is allowed (attempt <= max_attempts).
func (g *Gateway) RecordConnectionError(errMsg string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconnectAttempts++
	g.lastError = errMsg
	return g.reconnectAttempts <= g.config.Reconnect.MaxAttempts
}

// ResetReconnectState clears the counter after a successful connection
// or a clean stop.
func (g *Gateway) ResetReconnectState() {
	g.mu.Lock()
	g.reconnectAttempts = 0
	g.lastError = ""
	g.mu.Unlock()
}

// handleMessage runs the full per-message pipeline: password gate,
// command parse, bridge execution, audit, reply, webhook.
func (g *Gateway) handleMessage(ctx context.Context, msg models.IncomingRemoteMessage) {
	if g.config.RequirePassword && !g.isAuthenticated(msg.ChatID) {
		g.handleUnauthenticated(ctx, msg)
		return
	}

	cmd := ParseCommand(msg.Text)
	reply, err := g.bridge.Execute(ctx, msg.ChatID, cmd)

	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
		reply = "Error: " + errMsg
	}
	g.audit.Record(ctx, msg, string(cmd.Type), status, errMsg)

	if sendErr := g.adapter.SendReply(ctx, msg.ChatID, reply); sendErr != nil {
		g.logger.Warn("failed to send reply", "chat_id", msg.ChatID, "error", sendErr)
	}

	// Task-producing commands notify the webhook collaborator.
	if cmd.Type == models.CommandSendMessage && g.webhook != nil {
		eventType := models.WebhookTaskComplete
		summary := reply
		if err != nil {
			eventType = models.WebhookTaskFailed
			summary = errMsg
		}
		sessionID := ""
		for _, m := range g.bridge.Mappings() {
			if m.ChatID == msg.ChatID {
				sessionID = m.SessionID
				break
			}
		}
		g.webhook.Emit(ctx, models.WebhookPayload{
			EventType:    eventType,
			SessionID:    sessionID,
			Summary:      summary,
			RemoteSource: fmt.Sprintf("%s:%s", msg.AdapterType, msg.Username),
		})
	}
}

func (g *Gateway) handleUnauthenticated(ctx context.Context, msg models.IncomingRemoteMessage) {
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/auth ") {
		password := strings.TrimSpace(strings.TrimPrefix(text, "/auth "))
		if password == g.config.AccessPassword && g.config.AccessPassword != "" {
			g.mu.Lock()
			g.authenticated[msg.ChatID] = true
			g.mu.Unlock()
			g.audit.Record(ctx, msg, "Auth", "success", "")
			if err := g.adapter.SendReply(ctx, msg.ChatID, "Authenticated."); err != nil {
				g.logger.Warn("failed to send auth reply", "error", err)
			}
			return
		}
		g.audit.Record(ctx, msg, "Auth", "unauthorized", "invalid password")
		if err := g.adapter.SendReply(ctx, msg.ChatID, "Invalid password."); err != nil {
			g.logger.Warn("failed to send auth reply", "error", err)
		}
		return
	}

	g.audit.Record(ctx, msg, "Auth", "unauthorized", "not authenticated")
	if err := g.adapter.SendReply(ctx, msg.ChatID, "Authentication required. Send /auth <password> to authenticate."); err != nil {
		g.logger.Warn("failed to send auth prompt", "error", err)
	}
}

// isAuthenticated reads the authenticated-chat set.
func (g *Gateway) isAuthenticated(chatID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authenticated[chatID]
}
