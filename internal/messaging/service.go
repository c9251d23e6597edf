// Package messaging implements threaded message delivery: the message
// lifecycle, notification fan-out, edit history, read tracking and thread
// traversal, all on top of internal/database.
package messaging

import (
	"context"
	"iter"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/config"
	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// Options configures a Service. Users is required; the rest fall back to
// defaults.
type Options struct {
	Users     UserDirectory
	Messaging config.MessagingConfig
	Clock     clockwork.Clock
	Metrics   Metrics
	Pusher    Pusher
	Logger    *slog.Logger
}

// Service is the entry point of the messaging core.
type Service struct {
	db       *database.Store
	store    *MessageStore
	threads  *ThreadTraverser
	unread   *UnreadIndex
	hooks    *Hooks
	dispatch *NotificationDispatcher
	history  *HistoryRecorder
	logger   *slog.Logger
}

// NewService wires the message store, its event handlers and the query
// components over db.
func NewService(db *database.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	summary := opts.Messaging.SummaryLength
	if summary <= 0 {
		summary = config.DefaultSummaryLength
	}

	hooks := &Hooks{}
	s := &Service{
		db:       db,
		threads:  NewThreadTraverser(db),
		unread:   NewUnreadIndex(db, opts.Messaging.UnreadPageSize),
		hooks:    hooks,
		dispatch: newNotificationDispatcher(opts.Clock, summary, opts.Pusher, opts.Metrics, opts.Logger),
		history:  &HistoryRecorder{metrics: opts.Metrics},
		logger:   opts.Logger.With("component", "messaging"),
	}
	s.store = newMessageStore(db, opts.Users, hooks, opts.Clock, Policy{
		MaxContentLength: opts.Messaging.MaxContentLength,
		AllowSelfSend:    opts.Messaging.AllowSelfSend,
	}, opts.Metrics, opts.Logger)

	// The recorder goes first so the pre-image is written before any other
	// handler sees the change.
	s.history.register(hooks)
	s.dispatch.register(hooks, opts.Messaging.NotifyOnEdit)
	return s
}

// Hooks returns the event hooks so callers can add handlers that run
// inside mutation transactions.
func (s *Service) Hooks() *Hooks {
	return s.hooks
}

// CreateMessageInput is the payload of CreateMessage.
type CreateMessageInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	ParentID   string
}

// CreateMessage creates a message and its notification atomically.
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (MessageView, error) {
	m, err := s.store.Create(ctx, CreateInput(in))
	if err != nil {
		return MessageView{}, err
	}
	return newMessageView(*m), nil
}

// EditMessage replaces the content of a message, recording its history.
func (s *Service) EditMessage(ctx context.Context, id, content string) (MessageView, error) {
	m, err := s.store.Update(ctx, id, content)
	if err != nil {
		return MessageView{}, err
	}
	return newMessageView(*m), nil
}

// DeleteMessage deletes a message and everything below it.
func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.store.Delete(ctx, id)
	return err
}

// GetThread returns the whole thread containing id.
func (s *Service) GetThread(ctx context.Context, id string) (ThreadView, error) {
	root, err := s.threads.Root(ctx, id)
	if err != nil {
		return ThreadView{}, err
	}
	nodes, err := s.threads.subtree(ctx, root.ID)
	if err != nil {
		return ThreadView{}, err
	}

	view := ThreadView{
		FocusID:      id,
		Root:         newMessageView(*root),
		Replies:      make([]ThreadEntry, len(nodes)),
		Participants: participants(*root, nodes),
	}
	for i, n := range nodes {
		view.Replies[i] = ThreadEntry{MessageView: newMessageView(n.msg), Level: n.level}
	}
	view.ReplyCount = len(nodes)
	return view, nil
}

// Participants returns the sorted ids of everyone who sent or received a
// message in the thread containing id.
func (s *Service) Participants(ctx context.Context, id string) ([]string, error) {
	return s.threads.Participants(ctx, id)
}

// Threads exposes the traverser for callers that need raw messages.
func (s *Service) Threads() *ThreadTraverser {
	return s.threads
}

// ListUnread yields the unread messages of user, newest first.
func (s *Service) ListUnread(ctx context.Context, user string) iter.Seq2[MessageView, error] {
	return func(yield func(MessageView, error) bool) {
		for m, err := range s.unread.UnreadFor(ctx, user) {
			if err != nil {
				yield(MessageView{}, err)
				return
			}
			if !yield(newMessageView(m), nil) {
				return
			}
		}
	}
}

// UnreadCount returns how many unread messages user has.
func (s *Service) UnreadCount(ctx context.Context, user string) (int, error) {
	return s.unread.UnreadCount(ctx, user)
}

// UnreadFrom returns unread messages sender sent to receiver.
func (s *Service) UnreadFrom(ctx context.Context, receiver, sender string) ([]MessageView, error) {
	msgs, err := s.unread.UnreadFrom(ctx, receiver, sender)
	if err != nil {
		return nil, err
	}
	return toMessageViews(msgs), nil
}

// MarkRead marks one message read. asUser may be empty to skip the
// receiver check.
func (s *Service) MarkRead(ctx context.Context, id, asUser string) error {
	return s.store.MarkRead(ctx, id, asUser)
}

// MarkAllRead marks the unread messages of user read, only those in ids
// if any are given.
func (s *Service) MarkAllRead(ctx context.Context, user string, ids ...string) (int, error) {
	return s.store.MarkAllRead(ctx, user, ids)
}

// Notifications returns the notifications of user, newest first.
func (s *Service) Notifications(ctx context.Context, user string, unreadOnly bool) ([]NotificationView, error) {
	if user == "" {
		return nil, errs.NewValidationError("user is required", nil)
	}
	ns, err := s.db.Reader().ListNotifications(ctx, user, unreadOnly)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to list notifications", err)
	}
	out := make([]NotificationView, len(ns))
	for i, n := range ns {
		out[i] = newNotificationView(n)
	}
	return out, nil
}

// MarkNotificationsRead marks every notification of user read.
func (s *Service) MarkNotificationsRead(ctx context.Context, user string) (int, error) {
	return s.store.MarkNotificationsRead(ctx, user)
}

// History returns the edit history of a message, newest first.
func (s *Service) History(ctx context.Context, id string) ([]HistoryView, error) {
	q := s.db.Reader()
	m, err := q.GetMessage(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to load message", err)
	}
	if m == nil {
		return nil, errs.NewNotFoundError("message", id)
	}

	hs, err := q.ListHistory(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to list history", err)
	}
	out := make([]HistoryView, len(hs))
	for i, h := range hs {
		out[i] = newHistoryView(h)
	}
	return out, nil
}

// Conversations returns the thread roots user received, newest first.
func (s *Service) Conversations(ctx context.Context, user string) ([]ConversationView, error) {
	if user == "" {
		return nil, errs.NewValidationError("user is required", nil)
	}
	convs, err := s.db.Reader().ListConversations(ctx, user)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to list conversations", err)
	}
	out := make([]ConversationView, len(convs))
	for i, c := range convs {
		out[i] = ConversationView{MessageView: newMessageView(c.Message), ReplyCount: c.ReplyCount}
	}
	return out, nil
}

// DeleteUser removes a user together with everything they sent or received.
func (s *Service) DeleteUser(ctx context.Context, user string) error {
	_, err := s.store.DeleteUser(ctx, user)
	return err
}

func toMessageViews(msgs []database.Message) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = newMessageView(m)
	}
	return out
}
