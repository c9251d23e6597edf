package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/database"
)

// Pusher receives notifications after their transaction commits. Push must
// not block; delivery failures are the pusher's concern.
type Pusher interface {
	Push(n database.Notification)
}

// NotificationDispatcher writes one notification for the receiver of every
// new message and, when enabled, of every edited message.
type NotificationDispatcher struct {
	clock         clockwork.Clock
	summaryLength int
	pusher        Pusher
	metrics       Metrics
	logger        *slog.Logger
}

func newNotificationDispatcher(clock clockwork.Clock, summaryLength int, pusher Pusher, metrics Metrics, logger *slog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		clock:         clock,
		summaryLength: summaryLength,
		pusher:        pusher,
		metrics:       metrics,
		logger:        logger.With("component", "notification_dispatcher"),
	}
}

// register subscribes the dispatcher to h.
func (d *NotificationDispatcher) register(h *Hooks, notifyOnEdit bool) {
	h.OnMessageCreated("notification_dispatcher", d.onCreated)
	if notifyOnEdit {
		h.OnContentChanging("notification_dispatcher", d.onChanging)
	}
}

func (d *NotificationDispatcher) onCreated(ctx context.Context, q *database.Queries, ev MessageCreated) error {
	kind := database.NotificationNewMessage
	if !ev.Message.IsRoot() {
		kind = database.NotificationReply
	}
	return d.write(ctx, q, ev.Message.ReceiverID, ev.Message.ID, kind, ev.Message.Content)
}

func (d *NotificationDispatcher) onChanging(ctx context.Context, q *database.Queries, ev MessageContentChanging) error {
	return d.write(ctx, q, ev.Message.ReceiverID, ev.Message.ID, database.NotificationEdited, ev.NewContent)
}

func (d *NotificationDispatcher) write(ctx context.Context, q *database.Queries, userID, messageID string, kind database.NotificationKind, content string) error {
	n := database.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		MessageID: messageID,
		Kind:      kind,
		Content:   Summarize(content, d.summaryLength),
		CreatedAt: d.clock.Now().UTC(),
	}
	if err := q.InsertNotification(ctx, &n); err != nil {
		return err
	}

	d.logger.DebugContext(ctx, "Notification written", "notification_id", n.ID, "user_id", userID, "kind", kind)
	q.OnCommit(func() {
		d.metrics.NotificationCreated(kind)
		if d.pusher != nil {
			d.pusher.Push(n)
		}
	})
	return nil
}

// Summarize returns the first n characters of content.
func Summarize(content string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range content {
		if count == n {
			return content[:i]
		}
		count++
	}
	return content
}
