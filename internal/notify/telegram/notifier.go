package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/edgard/threadbox/internal/database"
)

// Sender is the part of *bot.Bot the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ChatResolver finds the Telegram chat linked to a user.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, userID string) (chatID int64, ok bool, err error)
}

// Recorder receives delivery counters.
type Recorder interface {
	PushDelivered(result string)
	PushQueueLength(n int)
}

type nopRecorder struct{}

func (nopRecorder) PushDelivered(string) {}
func (nopRecorder) PushQueueLength(int)  {}

// Delivery results reported to the Recorder.
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultDropped = "dropped"
	ResultError   = "error"
)

// Notifier pushes notifications to Telegram from a bounded queue. Push never
// blocks: a full queue drops the notification.
type Notifier struct {
	sender      Sender
	chats       ChatResolver
	queue       chan database.Notification
	sendTimeout time.Duration
	metrics     Recorder
	guard       *sendGuard
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NotifierOption customizes a Notifier.
type NotifierOption func(*notifierOptions)

type notifierOptions struct {
	attempts uint
	delay    time.Duration
	perSec   float64
}

// WithRetry retries a failed send up to attempts times in total, backing off
// exponentially from delay.
func WithRetry(attempts uint, delay time.Duration) NotifierOption {
	return func(o *notifierOptions) {
		o.attempts = attempts
		o.delay = delay
	}
}

// WithRateLimit paces sends to perSecond messages. Zero or less leaves
// sends unpaced.
func WithRateLimit(perSecond float64) NotifierOption {
	return func(o *notifierOptions) { o.perSec = perSecond }
}

// NewNotifier creates a Notifier with room for queueSize pending notifications.
func NewNotifier(sender Sender, chats ChatResolver, queueSize int, sendTimeout time.Duration, metrics Recorder, logger *slog.Logger, opts ...NotifierOption) *Notifier {
	if queueSize <= 0 {
		queueSize = 1
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := notifierOptions{attempts: 1}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With("component", "telegram_notifier")
	limit := rate.Inf
	if o.perSec > 0 {
		limit = rate.Limit(o.perSec)
	}
	return &Notifier{
		sender:      sender,
		chats:       chats,
		queue:       make(chan database.Notification, queueSize),
		sendTimeout: sendTimeout,
		metrics:     metrics,
		guard:       newSendGuard(o.attempts, o.delay, logger),
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Push enqueues n for delivery.
func (n *Notifier) Push(notif database.Notification) {
	select {
	case n.queue <- notif:
		n.metrics.PushQueueLength(len(n.queue))
	default:
		n.metrics.PushDelivered(ResultDropped)
		n.logger.Warn("Push queue full, dropping notification",
			"notification_id", notif.ID, "user_id", notif.UserID)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.InfoContext(ctx, "Telegram notifier started", "queue_size", cap(n.queue))
	for {
		select {
		case <-ctx.Done():
			n.logger.InfoContext(ctx, "Telegram notifier stopped", "pending", len(n.queue))
			return nil
		case notif := <-n.queue:
			n.metrics.PushQueueLength(len(n.queue))
			n.metrics.PushDelivered(n.deliver(ctx, notif))
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, notif database.Notification) string {
	chatID, ok, err := n.chats.TelegramChatID(ctx, notif.UserID)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to resolve Telegram chat", "user_id", notif.UserID, "error", err)
		return ResultError
	}
	if !ok {
		n.logger.DebugContext(ctx, "User has no Telegram chat linked, skipping", "user_id", notif.UserID)
		return ResultSkipped
	}

	if err := n.limiter.Wait(ctx); err != nil {
		// Only cancellation ends the wait; the notification is abandoned.
		return ResultDropped
	}

	params := &bot.SendMessageParams{ChatID: chatID, Text: FormatText(notif)}
	err = n.guard.do(ctx, func(ctx context.Context) error {
		if n.sendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
			defer cancel()
		}
		_, err := n.sender.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to send Telegram notification",
			"notification_id", notif.ID, "chat_id", chatID, "error", err)
		return ResultError
	}

	n.logger.DebugContext(ctx, "Telegram notification sent", "notification_id", notif.ID, "chat_id", chatID)
	return ResultSent
}

// FormatText renders the chat message for notif.
func FormatText(notif database.Notification) string {
	switch notif.Kind {
	case database.NotificationReply:
		return "New reply: " + notif.Content
	case database.NotificationEdited:
		return "Message edited: " + notif.Content
	default:
		return "New message: " + notif.Content
	}
}
