package remote

import (
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// HelpText is the reply to /help and unknown slash commands.
const HelpText = `Available commands:
/new <path> [provider] [model] — start a session in a project directory
/send <text> — send a message to the active session (or just type)
/sessions — list all open sessions (* marks this chat's active one)
/switch <id> — switch the active session
/status — show the active session's status
/cancel — cancel the running task
/close — close the active session
/auth <password> — authenticate this chat
/help — this message`

// ParseCommand parses message text into the closed RemoteCommand set
// (security layer 3). Bare text becomes SendMessage; unknown slash
// commands map to Help so nothing unrecognised reaches the bridge.
func ParseCommand(text string) models.RemoteCommand {
	trimmed := strings.TrimSpace(text)

	if !strings.HasPrefix(trimmed, "/") {
		return models.RemoteCommand{Type: models.CommandSendMessage, Content: trimmed}
	}

	fields := strings.Fields(trimmed)
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "/new":
		cmd := models.RemoteCommand{Type: models.CommandNewSession}
		if len(args) > 0 {
			cmd.Path = args[0]
		}
		if len(args) > 1 {
			cmd.Provider = args[1]
		}
		if len(args) > 2 {
			cmd.Model = args[2]
		}
		return cmd

	case "/send":
		return models.RemoteCommand{
			Type:    models.CommandSendMessage,
			Content: strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0])),
		}

	case "/sessions":
		return models.RemoteCommand{Type: models.CommandListSessions}

	case "/switch":
		cmd := models.RemoteCommand{Type: models.CommandSwitchSession}
		if len(args) > 0 {
			cmd.SessionID = args[0]
		}
		return cmd

	case "/status":
		return models.RemoteCommand{Type: models.CommandStatus}

	case "/cancel":
		return models.RemoteCommand{Type: models.CommandCancel}

	case "/close":
		return models.RemoteCommand{Type: models.CommandCloseSession}

	default:
		return models.RemoteCommand{Type: models.CommandHelp}
	}
}
