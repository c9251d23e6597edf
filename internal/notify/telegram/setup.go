// Package telegram delivers committed notifications to users' linked
// Telegram chats through go-telegram/bot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// ChatUsers maps a Telegram chat back to the user linked to it.
type ChatUsers interface {
	UserByTelegramChat(ctx context.Context, chatID int64) (*database.User, error)
}

// UnreadCounter reports how many unread messages a user has.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, user string) (int, error)
}

// NewTelegramBot creates a bot instance that answers /start with the chat
// id to link. Start it with (*bot.Bot).Start.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	opts = append(opts, bot.WithDefaultHandler(func(context.Context, *bot.Bot, *models.Update) {}))
	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, startHandler(log))
	log.Info("Telegram bot instance created successfully")
	return b, nil
}

func startHandler(log *slog.Logger) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   startReply(chatID),
		}); err != nil {
			log.ErrorContext(ctx, "Failed to answer /start", "chat_id", chatID, "error", err)
		}
	}
}

func startReply(chatID int64) string {
	return "threadbox notifications will be sent here once this chat is linked to your account. Chat id: " +
		strconv.FormatInt(chatID, 10)
}

// RegisterUnreadCommand answers /unread with the unread message count of the
// user linked to the chat.
func RegisterUnreadCommand(b *bot.Bot, users ChatUsers, unread UnreadCounter, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b.RegisterHandler(bot.HandlerTypeMessageText, "/unread", bot.MatchTypePrefix,
		func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.Message == nil {
				return
			}
			chatID := update.Message.Chat.ID
			if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   unreadReply(ctx, users, unread, chatID, log),
			}); err != nil {
				log.ErrorContext(ctx, "Failed to answer /unread", "chat_id", chatID, "error", err)
			}
		})
}

func unreadReply(ctx context.Context, users ChatUsers, unread UnreadCounter, chatID int64, log *slog.Logger) string {
	u, err := users.UserByTelegramChat(ctx, chatID)
	if errs.IsNotFound(err) {
		return "This chat is not linked to a threadbox account yet. Send /start to get its chat id."
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve chat user", "chat_id", chatID, "error", err)
		return "Could not look up your account, try again later."
	}

	n, err := unread.UnreadCount(ctx, u.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to count unread messages", "user_id", u.ID, "error", err)
		return "Could not count your unread messages, try again later."
	}
	switch n {
	case 0:
		return "No unread messages."
	case 1:
		return "You have 1 unread message."
	default:
		return "You have " + strconv.Itoa(n) + " unread messages."
	}
}
