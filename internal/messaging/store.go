package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// UserDirectory is the identity collaborator consulted on create.
type UserDirectory interface {
	UserExists(ctx context.Context, id string) (bool, error)
	UsersDiffer(a, b string) bool
}

// CreateInput carries the fields of a new message. An empty ParentID
// starts a new thread.
type CreateInput struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
	Content    string
	ParentID   string
}

// Policy holds the tunable rules MessageStore enforces.
type Policy struct {
	MaxContentLength int
	AllowSelfSend    bool
}

// MessageStore owns the message lifecycle. Every mutation runs in one
// transaction together with the side effects its events trigger.
//
// Lock order is account lock, then thread lock, then the database
// transaction. The account lock is shared by every mutation except
// DeleteUser, which holds it exclusively.
type MessageStore struct {
	db       *database.Store
	users    UserDirectory
	hooks    *Hooks
	locks    *threadLocks
	accounts sync.RWMutex
	clock    clockwork.Clock
	validate *validator.Validate
	policy   Policy
	metrics  Metrics
	logger   *slog.Logger
}

func newMessageStore(db *database.Store, users UserDirectory, hooks *Hooks, clock clockwork.Clock, policy Policy, metrics Metrics, logger *slog.Logger) *MessageStore {
	return &MessageStore{
		db:       db,
		users:    users,
		hooks:    hooks,
		locks:    newThreadLocks(),
		clock:    clock,
		validate: newInputValidator(),
		policy:   policy,
		metrics:  metrics,
		logger:   logger.With("component", "message_store"),
	}
}

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func (s *MessageStore) checkContent(content string) error {
	if err := s.validate.Var(content, "required,notblank"); err != nil {
		return errs.NewValidationError("content must not be empty", err)
	}
	if s.policy.MaxContentLength > 0 {
		if err := s.validate.Var(content, fmt.Sprintf("max=%d", s.policy.MaxContentLength)); err != nil {
			return errs.NewValidationError(
				fmt.Sprintf("content exceeds %d characters", s.policy.MaxContentLength), err)
		}
	}
	return nil
}

func (s *MessageStore) checkCreate(in CreateInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errs.NewValidationError(fmt.Sprintf("%s is required", verrs[0].Field()), err)
		}
		return errs.NewValidationError("invalid message input", err)
	}
	return s.checkContent(in.Content)
}

// Create validates in, inserts the message and emits MessageCreated in the
// same transaction.
func (s *MessageStore) Create(ctx context.Context, in CreateInput) (*database.Message, error) {
	if err := s.checkCreate(in); err != nil {
		return nil, err
	}

	s.accounts.RLock()
	defer s.accounts.RUnlock()

	for _, id := range []string{in.SenderID, in.ReceiverID} {
		exists, err := s.users.UserExists(ctx, id)
		if err != nil {
			return nil, errs.NewDatabaseError("failed to look up user", err)
		}
		if !exists {
			return nil, errs.NewNotFoundError("user", id)
		}
	}
	if !s.policy.AllowSelfSend && !s.users.UsersDiffer(in.SenderID, in.ReceiverID) {
		return nil, errs.NewValidationError("sender and receiver must differ", nil)
	}

	if in.ParentID != "" {
		root, err := rootOf(ctx, s.db.Reader(), in.ParentID)
		if err != nil {
			return nil, err
		}
		unlock := s.locks.lock(root.ID)
		defer unlock()
	}

	msg := &database.Message{
		ID:         uuid.NewString(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		CreatedAt:  s.clock.Now().UTC(),
	}

	err := s.db.InTx(ctx, func(q *database.Queries) error {
		if in.ParentID != "" {
			parent, err := q.GetMessage(ctx, in.ParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return errs.NewNotFoundError("message", in.ParentID)
			}
			msg.ParentID = sql.NullString{String: parent.ID, Valid: true}
			msg.Depth = parent.Depth + 1
		}

		if err := q.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := s.hooks.emitCreated(ctx, q, MessageCreated{Message: *msg}); err != nil {
			return err
		}

		reply := msg.ParentID.Valid
		q.OnCommit(func() { s.metrics.MessageCreated(reply) })
		return nil
	})
	if err != nil {
		return nil, s.txFailure(ctx, "create message", err)
	}

	s.logger.DebugContext(ctx, "Message created", "message_id", msg.ID, "parent_id", in.ParentID, "depth", msg.Depth)
	return msg, nil
}

// Update replaces the content of id. Equal content is a no-op that returns
// the stored message. Otherwise MessageContentChanging is emitted before the
// UPDATE executes, in the same transaction.
func (s *MessageStore) Update(ctx context.Context, id, newContent string) (*database.Message, error) {
	if err := s.checkContent(newContent); err != nil {
		return nil, err
	}

	s.accounts.RLock()
	defer s.accounts.RUnlock()

	unlock, err := s.lockThreadOf(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out database.Message
	err = s.db.InTx(ctx, func(q *database.Queries) error {
		m, err := s.mustGet(ctx, q, id)
		if err != nil {
			return err
		}
		if m.Content == newContent {
			out = *m
			return nil
		}

		ev := MessageContentChanging{
			Message:    *m,
			OldContent: m.Content,
			NewContent: newContent,
			ChangedAt:  s.clock.Now().UTC(),
		}
		if err := s.hooks.emitChanging(ctx, q, ev); err != nil {
			return err
		}
		if _, err := q.UpdateMessageContent(ctx, id, newContent); err != nil {
			return err
		}

		m.Content = newContent
		m.Edited = true
		out = *m
		q.OnCommit(s.metrics.MessageEdited)
		return nil
	})
	if err != nil {
		return nil, s.txFailure(ctx, "update message", err)
	}
	return &out, nil
}

// Delete removes id, its whole reply subtree and every notification and
// history entry of the removed messages.
func (s *MessageStore) Delete(ctx context.Context, id string) (database.DeleteCounts, error) {
	s.accounts.RLock()
	defer s.accounts.RUnlock()

	unlock, err := s.lockThreadOf(ctx, id)
	if err != nil {
		return database.DeleteCounts{}, err
	}
	defer unlock()

	var counts database.DeleteCounts
	err = s.db.InTx(ctx, func(q *database.Queries) error {
		if _, err := s.mustGet(ctx, q, id); err != nil {
			return err
		}
		ids, err := collectSubtreeIDs(ctx, q, []string{id})
		if err != nil {
			return err
		}
		if counts, err = q.DeleteMessages(ctx, ids); err != nil {
			return err
		}
		deleted := counts.Messages
		q.OnCommit(func() { s.metrics.MessagesDeleted(deleted) })
		return nil
	})
	if err != nil {
		return database.DeleteCounts{}, s.txFailure(ctx, "delete message", err)
	}

	s.logger.InfoContext(ctx, "Message deleted",
		"message_id", id, "messages", counts.Messages,
		"notifications", counts.Notifications, "history", counts.History)
	return counts, nil
}

// MarkRead sets the read flag of id. A non-empty asUser must be the
// receiver. Marking an already-read message succeeds without changes.
func (s *MessageStore) MarkRead(ctx context.Context, id, asUser string) error {
	s.accounts.RLock()
	defer s.accounts.RUnlock()

	unlock, err := s.lockThreadOf(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.db.InTx(ctx, func(q *database.Queries) error {
		m, err := s.mustGet(ctx, q, id)
		if err != nil {
			return err
		}
		if asUser != "" && asUser != m.ReceiverID {
			return errs.NewValidationError("only the receiver can mark a message read", nil)
		}
		if m.Read {
			return nil
		}
		n, err := q.MarkMessageRead(ctx, id)
		if err != nil {
			return err
		}
		q.OnCommit(func() { s.metrics.MessagesRead(n) })
		return nil
	})
	if err != nil {
		return s.txFailure(ctx, "mark message read", err)
	}
	return nil
}

// MarkAllRead marks the unread messages of user as read, restricted to ids
// when any are given, and returns how many changed. It is one UPDATE, so it
// needs no thread lock.
func (s *MessageStore) MarkAllRead(ctx context.Context, user string, ids []string) (int, error) {
	if user == "" {
		return 0, errs.NewValidationError("user is required", nil)
	}

	s.accounts.RLock()
	defer s.accounts.RUnlock()

	var n int64
	err := s.db.InTx(ctx, func(q *database.Queries) error {
		var err error
		if n, err = q.MarkMessagesRead(ctx, user, ids); err != nil {
			return err
		}
		changed := n
		q.OnCommit(func() { s.metrics.MessagesRead(changed) })
		return nil
	})
	if err != nil {
		return 0, s.txFailure(ctx, "mark messages read", err)
	}
	return int(n), nil
}

// MarkNotificationsRead marks every unread notification of user as read.
func (s *MessageStore) MarkNotificationsRead(ctx context.Context, user string) (int, error) {
	if user == "" {
		return 0, errs.NewValidationError("user is required", nil)
	}

	s.accounts.RLock()
	defer s.accounts.RUnlock()

	var n int64
	err := s.db.InTx(ctx, func(q *database.Queries) error {
		var err error
		n, err = q.MarkNotificationsRead(ctx, user)
		return err
	})
	if err != nil {
		return 0, s.txFailure(ctx, "mark notifications read", err)
	}
	return int(n), nil
}

// DeleteUser removes every message user sent or received together with
// their subtrees, every notification targeted at user, every history entry
// user authored, and finally the user row.
func (s *MessageStore) DeleteUser(ctx context.Context, user string) (database.DeleteCounts, error) {
	if user == "" {
		return database.DeleteCounts{}, errs.NewValidationError("user is required", nil)
	}

	s.accounts.Lock()
	defer s.accounts.Unlock()

	var counts database.DeleteCounts
	err := s.db.InTx(ctx, func(q *database.Queries) error {
		u, err := q.GetUser(ctx, user)
		if err != nil {
			return err
		}
		if u == nil {
			return errs.NewNotFoundError("user", user)
		}

		owned, err := q.ListMessageIDsForUser(ctx, user)
		if err != nil {
			return err
		}
		ids, err := collectSubtreeIDs(ctx, q, owned)
		if err != nil {
			return err
		}
		if counts, err = q.DeleteMessages(ctx, ids); err != nil {
			return err
		}

		notifs, err := q.DeleteNotificationsForUser(ctx, user)
		if err != nil {
			return err
		}
		history, err := q.DeleteHistoryByEditor(ctx, user)
		if err != nil {
			return err
		}
		counts.Notifications += notifs
		counts.History += history

		if _, err := q.DeleteUserRow(ctx, user); err != nil {
			return err
		}

		deleted := counts.Messages
		q.OnCommit(func() {
			s.metrics.MessagesDeleted(deleted)
			s.metrics.UserDeleted()
		})
		return nil
	})
	if err != nil {
		return database.DeleteCounts{}, s.txFailure(ctx, "delete user", err)
	}

	s.logger.InfoContext(ctx, "User deleted",
		"user_id", user, "messages", counts.Messages,
		"notifications", counts.Notifications, "history", counts.History)
	return counts, nil
}

// lockThreadOf resolves the root of id and takes its thread lock.
func (s *MessageStore) lockThreadOf(ctx context.Context, id string) (func(), error) {
	root, err := rootOf(ctx, s.db.Reader(), id)
	if err != nil {
		return nil, err
	}
	return s.locks.lock(root.ID), nil
}

// mustGet re-reads id inside the transaction; it may have been deleted
// while the caller waited for the thread lock.
func (s *MessageStore) mustGet(ctx context.Context, q *database.Queries, id string) (*database.Message, error) {
	m, err := q.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errs.NewNotFoundError("message", id)
	}
	return m, nil
}

// collectSubtreeIDs returns ids plus every descendant of them, without duplicates.
func collectSubtreeIDs(ctx context.Context, q *database.Queries, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, id := range ids {
		if _, done := seen[id]; done {
			continue
		}
		add(id)
		descendants, err := q.ListDescendants(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, m := range descendants {
			add(m.ID)
		}
	}
	return out, nil
}

// txFailure keeps typed errors as they are and reports anything else that
// aborted a transaction as a TransactionError.
func (s *MessageStore) txFailure(ctx context.Context, op string, err error) error {
	if errs.Code(err) == errs.CodeUnknown {
		err = errs.NewTransactionError(fmt.Sprintf("failed to %s", op), err)
	}
	s.metrics.OperationFailed(op, errs.Code(err))
	if errs.IsTransaction(err) {
		s.logger.ErrorContext(ctx, "Transaction aborted", "op", op, "error", err)
	} else {
		s.logger.DebugContext(ctx, "Operation rejected", "op", op, "error", err)
	}
	return err
}
