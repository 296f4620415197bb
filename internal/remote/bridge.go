package remote

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

// SessionHandle is one live orchestrator session driven from a chat.
type SessionHandle interface {
	ID() string
	// Send runs one request through the session and returns the reply
	// summary text.
	Send(ctx context.Context, content string) (string, error)
	// Cancel asks the in-flight run to stop.
	Cancel()
	Status() string
	Close()
}

// SessionFactory creates a session rooted at a project path. provider
// and model may be empty for defaults.
type SessionFactory func(projectPath, provider, model string) (SessionHandle, error)

// SessionBridge maps chats to sessions and serialises message handling
// per chat. It enforces the project-path allow-list (security layer 2):
// sessions can only open inside explicitly allowed directories.
type SessionBridge struct {
	factory      SessionFactory
	allowedPaths []string

	mu           sync.RWMutex
	sessions     map[string]SessionHandle
	chatSessions map[int64]string

	chatLocksMu sync.Mutex
	chatLocks   map[int64]*sync.Mutex
}

// NewSessionBridge builds a bridge. allowedPaths is the closed set of
// project directories remote chats may open sessions in.
func NewSessionBridge(factory SessionFactory, allowedPaths []string) *SessionBridge {
	return &SessionBridge{
		factory:      factory,
		allowedPaths: allowedPaths,
		sessions:     map[string]SessionHandle{},
		chatSessions: map[int64]string{},
		chatLocks:    map[int64]*sync.Mutex{},
	}
}

// chatLock returns the per-chat mutex, creating it on first use.
// Messages for the same chat are serialised; distinct chats proceed
// concurrently.
func (b *SessionBridge) chatLock(chatID int64) *sync.Mutex {
	b.chatLocksMu.Lock()
	defer b.chatLocksMu.Unlock()
	lock, ok := b.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		b.chatLocks[chatID] = lock
	}
	return lock
}

// pathAllowed checks the layer-2 allow-list.
func (b *SessionBridge) pathAllowed(path string) bool {
	clean := filepath.Clean(path)
	for _, allowed := range b.allowedPaths {
		allowedClean := filepath.Clean(allowed)
		if clean == allowedClean || strings.HasPrefix(clean, allowedClean+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Execute runs one parsed command for a chat and returns the reply text.
func (b *SessionBridge) Execute(ctx context.Context, chatID int64, cmd models.RemoteCommand) (string, error) {
	lock := b.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	switch cmd.Type {
	case models.CommandNewSession:
		return b.newSession(chatID, cmd)
	case models.CommandSendMessage:
		return b.sendMessage(ctx, chatID, cmd.Content)
	case models.CommandListSessions:
		return b.listSessions(chatID), nil
	case models.CommandSwitchSession:
		return b.switchSession(chatID, cmd.SessionID)
	case models.CommandStatus:
		return b.status(chatID), nil
	case models.CommandCancel:
		return b.cancel(chatID)
	case models.CommandCloseSession:
		return b.closeSession(chatID)
	case models.CommandHelp:
		return HelpText, nil
	default:
		return HelpText, nil
	}
}

func (b *SessionBridge) newSession(chatID int64, cmd models.RemoteCommand) (string, error) {
	if cmd.Path == "" {
		return "", &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "bridge", Message: "usage: /new <path> [provider] [model]"}
	}
	if !b.pathAllowed(cmd.Path) {
		return "", &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "bridge", Message: fmt.Sprintf("project path %q is not allowed", cmd.Path)}
	}

	session, err := b.factory(cmd.Path, cmd.Provider, cmd.Model)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.sessions[session.ID()] = session
	b.chatSessions[chatID] = session.ID()
	b.mu.Unlock()

	return fmt.Sprintf("Session %s started in %s", session.ID(), cmd.Path), nil
}

func (b *SessionBridge) sendMessage(ctx context.Context, chatID int64, content string) (string, error) {
	session, err := b.activeSession(chatID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "bridge", Message: "message is empty"}
	}
	return session.Send(ctx, content)
}

func (b *SessionBridge) listSessions(chatID int64) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	active := b.chatSessions[chatID]
	if len(b.sessions) == 0 {
		return "No sessions. Use /new <path> to start one."
	}

	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out strings.Builder
	out.WriteString("Sessions:\n")
	for _, id := range ids {
		marker := "  "
		if id == active {
			marker = "* "
		}
		fmt.Fprintf(&out, "%s%s (%s)\n", marker, id, b.sessions[id].Status())
	}
	return strings.TrimRight(out.String(), "\n")
}

func (b *SessionBridge) switchSession(chatID int64, sessionID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[sessionID]; !ok {
		return "", &providers.CoreError{Kind: providers.KindNotFound, Component: "bridge", Message: fmt.Sprintf("session %q not found", sessionID)}
	}
	b.chatSessions[chatID] = sessionID
	return "Switched to session " + sessionID, nil
}

func (b *SessionBridge) status(chatID int64) string {
	session, err := b.activeSession(chatID)
	if err != nil {
		return "No active session. Use /new <path> to start one."
	}
	return fmt.Sprintf("Session %s: %s", session.ID(), session.Status())
}

func (b *SessionBridge) cancel(chatID int64) (string, error) {
	session, err := b.activeSession(chatID)
	if err != nil {
		return "", err
	}
	session.Cancel()
	return "Cancellation requested.", nil
}

func (b *SessionBridge) closeSession(chatID int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.chatSessions[chatID]
	if !ok {
		return "", &providers.CoreError{Kind: providers.KindNotFound, Component: "bridge", Message: "no active session"}
	}
	if session, ok := b.sessions[id]; ok {
		session.Close()
		delete(b.sessions, id)
	}
	delete(b.chatSessions, chatID)
	return "Session " + id + " closed.", nil
}

// Mappings returns the chat→session pairs for status surfaces.
func (b *SessionBridge) Mappings() []models.RemoteSessionMapping {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mappings := make([]models.RemoteSessionMapping, 0, len(b.chatSessions))
	for chatID, sessionID := range b.chatSessions {
		mappings = append(mappings, models.RemoteSessionMapping{ChatID: chatID, SessionID: sessionID})
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].ChatID < mappings[j].ChatID })
	return mappings
}

// Disconnect drops a chat's mapping without closing the session.
func (b *SessionBridge) Disconnect(chatID int64) {
	b.mu.Lock()
	delete(b.chatSessions, chatID)
	b.mu.Unlock()
}

func (b *SessionBridge) activeSession(chatID int64) (SessionHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.chatSessions[chatID]
	if !ok {
		return nil, &providers.CoreError{Kind: providers.KindNotFound, Component: "bridge", Message: "no active session; use /new <path>"}
	}
	session, ok := b.sessions[id]
	if !ok {
		return nil, &providers.CoreError{Kind: providers.KindNotFound, Component: "bridge", Message: "session expired"}
	}
	return session, nil
}
