package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	// Token is the bot token from @BotFather (required).
	Token string `json:"token" yaml:"token"`

	// AllowedChatIDs is the layer-1 allow-list. Empty means every chat
	// is rejected: remote access is opt-in per chat.
	AllowedChatIDs []int64 `json:"allowed_chat_ids" yaml:"allowed_chat_ids"`

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Validate checks the configuration and applies defaults.
func (c *TelegramConfig) Validate() error {
	if c.Token == "" {
		return &providers.CoreError{Kind: providers.KindInvalidConfig, Component: "telegram", Message: "token is required"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// TelegramAdapter implements Adapter over long polling.
type TelegramAdapter struct {
	config  TelegramConfig
	bot     *bot.Bot
	allowed map[int64]bool
	logger  *slog.Logger
}

// NewTelegramAdapter creates the adapter.
func NewTelegramAdapter(config TelegramConfig) (*TelegramAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	allowed := make(map[int64]bool, len(config.AllowedChatIDs))
	for _, id := range config.AllowedChatIDs {
		allowed[id] = true
	}

	return &TelegramAdapter{
		config:  config,
		allowed: allowed,
		logger:  config.Logger.With("adapter", "telegram"),
	}, nil
}

// Type implements Adapter.
func (a *TelegramAdapter) Type() string { return "telegram" }

// Start connects the bot and long-polls until the context ends.
func (a *TelegramAdapter) Start(ctx context.Context, messages chan<- models.IncomingRemoteMessage) error {
	handler := func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		if update.Message == nil || update.Message.Text == "" {
			return
		}
		chatID := update.Message.Chat.ID
		if !a.allowed[chatID] {
			a.logger.Warn("message from disallowed chat dropped", "chat_id", chatID)
			return
		}

		var userID int64
		var username string
		if update.Message.From != nil {
			userID = update.Message.From.ID
			username = update.Message.From.Username
		}

		incoming := models.IncomingRemoteMessage{
			AdapterType: a.Type(),
			ChatID:      chatID,
			UserID:      userID,
			Username:    username,
			Text:        update.Message.Text,
			MessageID:   int64(update.Message.ID),
			Timestamp:   time.Unix(int64(update.Message.Date), 0),
		}

		select {
		case messages <- incoming:
		case <-ctx.Done():
		}
	}

	b, err := bot.New(a.config.Token, bot.WithDefaultHandler(handler))
	if err != nil {
		return &providers.CoreError{Kind: providers.KindAuthenticationFailed, Component: "telegram", Message: "failed to create bot", Cause: err}
	}
	a.bot = b

	a.logger.Info("telegram adapter started", "allowed_chats", len(a.allowed))
	b.Start(ctx)
	return ctx.Err()
}

// SendReply delivers a text reply.
func (a *TelegramAdapter) SendReply(ctx context.Context, chatID int64, text string) error {
	if a.bot == nil {
		return &providers.CoreError{Kind: providers.KindProviderUnavailable, Component: "telegram", Message: "bot not started"}
	}
	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return providers.WrapNetworkError("telegram", err)
	}
	return nil
}
