// ABOUTME: Telegram Bot API adapter implementing the engine's chat client
// ABOUTME: Message edits are idempotent: editing to unchanged content reports success

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calgate/calgate/internal/engine"
)

// Bot wraps the Telegram Bot API behind the engine.ChatClient surface and
// the handoff notifier.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// New authenticates against the Bot API.
func New(token string, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authenticating bot: %w", err)
	}
	logger = logger.With("component", "telegram")
	logger.Info("bot authenticated", "username", api.Self.UserName)
	return &Bot{api: api, logger: logger}, nil
}

// Send posts a plain text message and returns its message ID.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending message: %w", err)
	}
	return sent.MessageID, nil
}

// SendKeyboard posts a message carrying an inline keyboard. The prompt is
// sent silently so opening a menu does not ping the chat.
func (b *Bot) SendKeyboard(ctx context.Context, chatID int64, text string, kb engine.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = toMarkup(kb)
	msg.DisableNotification = true
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending keyboard: %w", err)
	}
	return sent.MessageID, nil
}

// Reply posts a message as a reply to an earlier one.
func (b *Bot) Reply(ctx context.Context, chatID int64, replyToID int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToID
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending reply: %w", err)
	}
	return sent.MessageID, nil
}

// Edit replaces a message's text and keyboard in place. Editing to content
// the message already has is treated as success.
func (b *Bot) Edit(ctx context.Context, chatID int64, messageID int, text string, kb engine.Keyboard) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, toMarkup(kb))
	if _, err := b.api.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

// ClearKeyboard removes the inline keyboard from a message.
func (b *Bot) ClearKeyboard(ctx context.Context, chatID int64, messageID int) error {
	// An empty keyboard removes the markup.
	markup := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup)
	if _, err := b.api.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("clearing keyboard: %w", err)
	}
	return nil
}

// Delete removes a message from the chat.
func (b *Bot) Delete(ctx context.Context, chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

// Notify satisfies the handoff dispatcher's notifier.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := b.Send(ctx, chatID, text)
	return err
}

// UpdatesChan starts long polling with the given timeout in seconds.
func (b *Bot) UpdatesChan(timeoutSeconds int) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeoutSeconds
	return b.api.GetUpdatesChan(cfg)
}

// StopUpdates stops the long-poll loop; the updates channel closes shortly
// after.
func (b *Bot) StopUpdates() {
	b.api.StopReceivingUpdates()
}

// AnswerCallback acknowledges a callback query so the client stops showing
// a progress indicator.
func (b *Bot) AnswerCallback(callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		b.logger.Warn("answering callback failed", "error", err)
	}
}

// isNotModified detects the Bot API's complaint about editing a message to
// identical content.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func toMarkup(kb engine.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
