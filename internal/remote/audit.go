package remote

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// AuditLogger writes every inbound remote message to the
// remote_audit_log table (security layer 5). Audit failures are logged
// and swallowed: the gateway keeps serving even when the log cannot be
// written.
type AuditLogger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditLogger wraps the shared database handle.
func NewAuditLogger(db *sql.DB, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{db: db, logger: logger.With("component", "remote_audit")}
}

// Record writes one audit row. errorMessage is empty on success.
func (a *AuditLogger) Record(ctx context.Context, msg models.IncomingRemoteMessage, commandType, resultStatus, errorMessage string) {
	if a.db == nil {
		return
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO remote_audit_log (adapter_type, chat_id, user_id, username, command_text, command_type, result_status, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.AdapterType, msg.ChatID, msg.UserID, msg.Username, msg.Text,
		commandType, resultStatus, nullIfEmpty(errorMessage), time.Now().UTC(),
	)
	if err != nil {
		a.logger.Warn("failed to write audit log", "error", err)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
