// Package remote is the chat-bot gateway: transport adapters stream
// incoming messages into the gateway, which authenticates, audits,
// routes commands to the session bridge, and reconnects on transport
// failure.
package remote

import (
	"context"

	"github.com/loomhq/loom/pkg/models"
)

// Adapter opens a chat transport and streams incoming messages through
// a bounded sender. Start blocks until the transport closes or ctx is
// cancelled; the gateway's reconnect state machine wraps it.
type Adapter interface {
	// Type is the stable adapter identifier ("telegram").
	Type() string

	// Start connects and pumps messages into the channel until the
	// transport fails or the context ends. The adapter enforces its own
	// chat allow-list before forwarding (security layer 1).
	Start(ctx context.Context, messages chan<- models.IncomingRemoteMessage) error

	// SendReply delivers a text reply to a chat.
	SendReply(ctx context.Context, chatID int64, text string) error
}
