package models

import "time"

// IncomingRemoteMessage is one message received from a chat-bot
// transport, normalised across adapters.
type IncomingRemoteMessage struct {
	AdapterType string    `json:"adapter_type"`
	ChatID      int64     `json:"chat_id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Text        string    `json:"text"`
	MessageID   int64     `json:"message_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// RemoteCommandType names a parsed remote command variant.
type RemoteCommandType string

const (
	CommandNewSession    RemoteCommandType = "NewSession"
	CommandSendMessage   RemoteCommandType = "SendMessage"
	CommandListSessions  RemoteCommandType = "ListSessions"
	CommandSwitchSession RemoteCommandType = "SwitchSession"
	CommandStatus        RemoteCommandType = "Status"
	CommandCancel        RemoteCommandType = "Cancel"
	CommandCloseSession  RemoteCommandType = "CloseSession"
	CommandHelp          RemoteCommandType = "Help"
)

// RemoteCommand is the closed command set the gateway will execute. The
// closed variant set is itself a security layer: unknown commands never
// reach the session bridge.
type RemoteCommand struct {
	Type RemoteCommandType `json:"type"`

	// NewSession fields.
	Path     string `json:"path,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// SendMessage field.
	Content string `json:"content,omitempty"`

	// SwitchSession field.
	SessionID string `json:"session_id,omitempty"`
}

// RemoteSessionMapping pairs a chat with its active orchestrator session.
type RemoteSessionMapping struct {
	ChatID    int64  `json:"chat_id"`
	SessionID string `json:"session_id"`
}

// WebhookEventType classifies gateway webhook notifications.
type WebhookEventType string

const (
	WebhookTaskComplete WebhookEventType = "TaskComplete"
	WebhookTaskFailed   WebhookEventType = "TaskFailed"
)

// WebhookPayload is emitted to the webhook collaborator after
// task-producing remote commands.
type WebhookPayload struct {
	EventType    WebhookEventType `json:"event_type"`
	SessionID    string           `json:"session_id"`
	Summary      string           `json:"summary"`
	RemoteSource string           `json:"remote_source"`
}
