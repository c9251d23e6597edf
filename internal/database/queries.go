package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const messageColumns = `seq, id, sender_id, receiver_id, content, created_at, is_edited, is_read, parent_id, thread_depth`

const notificationColumns = `id, user_id, message_id, kind, content, created_at, is_read`

// Queries holds every row-level statement. It runs against either the pool
// or one transaction; see Store.Reader and Store.InTx.
type Queries struct {
	ext      sqlx.ExtContext
	logger   *slog.Logger
	inTx     bool
	onCommit []func()
}

// OnCommit registers fn to run after the surrounding transaction commits.
// Outside a transaction fn runs immediately.
func (q *Queries) OnCommit(fn func()) {
	if !q.inTx {
		fn()
		return
	}
	q.onCommit = append(q.onCommit, fn)
}

// UnreadCursor is the keyset position of the last message of a page.
type UnreadCursor struct {
	CreatedAt time.Time
	Seq       int64
}

// --- users ---

// InsertUser inserts a new user row.
func (q *Queries) InsertUser(ctx context.Context, u *User) error {
	query := `
        INSERT INTO users (id, username, telegram_chat_id, created_at)
        VALUES (:id, :username, :telegram_chat_id, :created_at);
    `
	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, u); err != nil {
		q.logger.ErrorContext(ctx, "Error inserting user", "user_id", u.ID, "error", err)
		return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser returns the user with id, or nil, nil if it does not exist.
func (q *Queries) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.ext, &u,
		"SELECT id, username, telegram_chat_id, created_at FROM users WHERE id = ?;", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.ErrorContext(ctx, "Error getting user", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByUsername looks a user up case-insensitively. Returns nil, nil if not found.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.ext, &u,
		"SELECT id, username, telegram_chat_id, created_at FROM users WHERE username = ? COLLATE NOCASE;", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.ErrorContext(ctx, "Error getting user by username", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get user %q: %w", username, err)
	}
	return &u, nil
}

// GetUserByTelegramChatID returns the oldest user linked to chatID, or nil,
// nil if no user is linked to it.
func (q *Queries) GetUserByTelegramChatID(ctx context.Context, chatID int64) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.ext, &u, `
        SELECT id, username, telegram_chat_id, created_at FROM users
        WHERE telegram_chat_id = ?
        ORDER BY created_at, rowid
        LIMIT 1;`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.ErrorContext(ctx, "Error getting user by telegram chat", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get user for chat %d: %w", chatID, err)
	}
	return &u, nil
}

// UserExists reports whether a user row with id exists.
func (q *Queries) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = ?);", id); err != nil {
		q.logger.ErrorContext(ctx, "Error checking user existence", "user_id", id, "error", err)
		return false, fmt.Errorf("failed to check user %s: %w", id, err)
	}
	return exists, nil
}

// SetTelegramChatID links (or, with an invalid value, unlinks) a Telegram chat.
func (q *Queries) SetTelegramChatID(ctx context.Context, id string, chatID sql.NullInt64) (int64, error) {
	res, err := q.ext.ExecContext(ctx, "UPDATE users SET telegram_chat_id = ? WHERE id = ?;", chatID, id)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error updating telegram chat id", "user_id", id, "error", err)
		return 0, fmt.Errorf("failed to set telegram chat for user %s: %w", id, err)
	}
	return res.RowsAffected()
}

// DeleteUserRow deletes the user row only. Callers remove dependent rows first.
func (q *Queries) DeleteUserRow(ctx context.Context, id string) (int64, error) {
	res, err := q.ext.ExecContext(ctx, "DELETE FROM users WHERE id = ?;", id)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error deleting user", "user_id", id, "error", err)
		return 0, fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return res.RowsAffected()
}

// --- messages ---

// InsertMessage inserts m and sets m.Seq from the generated row id.
func (q *Queries) InsertMessage(ctx context.Context, m *Message) error {
	query := `
        INSERT INTO messages (id, sender_id, receiver_id, content, created_at, is_edited, is_read, parent_id, thread_depth)
        VALUES (:id, :sender_id, :receiver_id, :content, :created_at, :is_edited, :is_read, :parent_id, :thread_depth);
    `
	res, err := sqlx.NamedExecContext(ctx, q.ext, query, m)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error inserting message", "message_id", m.ID, "error", err)
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sequence of message %s: %w", m.ID, err)
	}
	m.Seq = seq
	return nil
}

// GetMessage returns the message with id, or nil, nil if it does not exist.
func (q *Queries) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := sqlx.GetContext(ctx, q.ext, &m, "SELECT "+messageColumns+" FROM messages WHERE id = ?;", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.ErrorContext(ctx, "Error getting message", "message_id", id, "error", err)
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return &m, nil
}

// UpdateMessageContent stores new content and sets the edited flag.
func (q *Queries) UpdateMessageContent(ctx context.Context, id, content string) (int64, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE messages SET content = ?, is_edited = 1 WHERE id = ?;", content, id)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error updating message content", "message_id", id, "error", err)
		return 0, fmt.Errorf("failed to update message %s: %w", id, err)
	}
	return res.RowsAffected()
}

// MarkMessageRead sets the read flag of one message. Already-read messages
// are left untouched and count as zero rows.
func (q *Queries) MarkMessageRead(ctx context.Context, id string) (int64, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE messages SET is_read = 1 WHERE id = ? AND is_read = 0;", id)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error marking message read", "message_id", id, "error", err)
		return 0, fmt.Errorf("failed to mark message %s read: %w", id, err)
	}
	return res.RowsAffected()
}

// MarkMessagesRead marks unread messages received by receiverID as read.
// With ids empty every unread message of the receiver is affected; otherwise
// only those ids. Returns the number of rows changed.
func (q *Queries) MarkMessagesRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	query := "UPDATE messages SET is_read = 1 WHERE receiver_id = ? AND is_read = 0;"
	args := []any{receiverID}
	if len(ids) > 0 {
		var err error
		query, args, err = sqlx.In(
			"UPDATE messages SET is_read = 1 WHERE receiver_id = ? AND is_read = 0 AND id IN (?);", receiverID, ids)
		if err != nil {
			return 0, fmt.Errorf("failed to build mark-read query: %w", err)
		}
		query = q.ext.Rebind(query)
	}

	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error marking messages read", "receiver_id", receiverID, "ids", len(ids), "error", err)
		return 0, fmt.Errorf("failed to mark messages read for %s: %w", receiverID, err)
	}
	return res.RowsAffected()
}

// ListUnreadPage returns up to limit unread messages for receiverID, newest
// first, strictly after the cursor when one is given.
func (q *Queries) ListUnreadPage(ctx context.Context, receiverID string, after *UnreadCursor, limit int) ([]Message, error) {
	query := "SELECT " + messageColumns + ` FROM messages
        WHERE receiver_id = ? AND is_read = 0
        ORDER BY created_at DESC, seq DESC LIMIT ?;`
	args := []any{receiverID, limit}
	if after != nil {
		query = "SELECT " + messageColumns + ` FROM messages
            WHERE receiver_id = ? AND is_read = 0
              AND (created_at < ? OR (created_at = ? AND seq < ?))
            ORDER BY created_at DESC, seq DESC LIMIT ?;`
		at := after.CreatedAt.UTC()
		args = []any{receiverID, at, at, after.Seq, limit}
	}

	var page []Message
	if err := sqlx.SelectContext(ctx, q.ext, &page, query, args...); err != nil {
		q.logger.ErrorContext(ctx, "Error listing unread messages", "receiver_id", receiverID, "error", err)
		return nil, fmt.Errorf("failed to list unread messages for %s: %w", receiverID, err)
	}
	return page, nil
}

// CountUnread returns how many unread messages receiverID has.
func (q *Queries) CountUnread(ctx context.Context, receiverID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q.ext, &n,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0;", receiverID); err != nil {
		q.logger.ErrorContext(ctx, "Error counting unread messages", "receiver_id", receiverID, "error", err)
		return 0, fmt.Errorf("failed to count unread messages for %s: %w", receiverID, err)
	}
	return n, nil
}

// ListUnreadFrom returns unread messages senderID sent to receiverID, newest first.
func (q *Queries) ListUnreadFrom(ctx context.Context, receiverID, senderID string) ([]Message, error) {
	var msgs []Message
	if err := sqlx.SelectContext(ctx, q.ext, &msgs, "SELECT "+messageColumns+` FROM messages
        WHERE receiver_id = ? AND sender_id = ? AND is_read = 0
        ORDER BY created_at DESC, seq DESC;`, receiverID, senderID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing unread messages from sender",
			"receiver_id", receiverID, "sender_id", senderID, "error", err)
		return nil, fmt.Errorf("failed to list unread messages from %s: %w", senderID, err)
	}
	return msgs, nil
}

// ListDescendants loads every message below id in one recursive query.
// UNION (not UNION ALL) keeps the recursion finite even if the stored parent
// links contain a cycle. The order of the result is unspecified.
func (q *Queries) ListDescendants(ctx context.Context, id string) ([]Message, error) {
	query := `
        WITH RECURSIVE subtree(id) AS (
            SELECT id FROM messages WHERE parent_id = ?
            UNION
            SELECT m.id FROM messages m JOIN subtree s ON m.parent_id = s.id
        )
        SELECT ` + messageColumns + ` FROM messages WHERE id IN (SELECT id FROM subtree);
    `
	var msgs []Message
	if err := sqlx.SelectContext(ctx, q.ext, &msgs, query, id); err != nil {
		q.logger.ErrorContext(ctx, "Error listing descendants", "message_id", id, "error", err)
		return nil, fmt.Errorf("failed to list descendants of %s: %w", id, err)
	}
	return msgs, nil
}

// ListConversations returns thread roots received by userID, newest first,
// each with its number of direct replies.
func (q *Queries) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	query := `
        SELECT m.seq, m.id, m.sender_id, m.receiver_id, m.content, m.created_at, m.is_edited, m.is_read,
               m.parent_id, m.thread_depth,
               (SELECT COUNT(*) FROM messages r WHERE r.parent_id = m.id) AS reply_count
        FROM messages m
        WHERE m.parent_id IS NULL AND m.receiver_id = ?
        ORDER BY m.created_at DESC, m.seq DESC;
    `
	var convs []Conversation
	if err := sqlx.SelectContext(ctx, q.ext, &convs, query, userID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing conversations", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list conversations for %s: %w", userID, err)
	}
	return convs, nil
}

// ListMessageIDsForUser returns the ids of every message userID sent or received.
func (q *Queries) ListMessageIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, q.ext, &ids,
		"SELECT id FROM messages WHERE sender_id = ? OR receiver_id = ?;", userID, userID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing user messages", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list messages of %s: %w", userID, err)
	}
	return ids, nil
}

// DeleteMessages removes the history entries, notifications and rows of the
// given messages, in that order. ids must already contain every descendant
// of the messages being removed.
//
// The parent_id foreign key cascades, and SQLite leaves cascaded rows out of
// RowsAffected, so the message count is taken before the DELETE.
func (q *Queries) DeleteMessages(ctx context.Context, ids []string) (DeleteCounts, error) {
	var counts DeleteCounts
	if len(ids) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In("SELECT COUNT(*) FROM messages WHERE id IN (?);", ids)
	if err != nil {
		return counts, fmt.Errorf("failed to build count query for messages: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &counts.Messages, q.ext.Rebind(query), args...); err != nil {
		q.logger.ErrorContext(ctx, "Error counting messages to delete", "ids", len(ids), "error", err)
		return counts, fmt.Errorf("failed to count messages: %w", err)
	}

	steps := []struct {
		table string
		query string
		count *int64
	}{
		{"message_history", "DELETE FROM message_history WHERE message_id IN (?);", &counts.History},
		{"notifications", "DELETE FROM notifications WHERE message_id IN (?);", &counts.Notifications},
		{"messages", "DELETE FROM messages WHERE id IN (?);", nil},
	}
	for _, step := range steps {
		query, args, err := sqlx.In(step.query, ids)
		if err != nil {
			return counts, fmt.Errorf("failed to build delete query for %s: %w", step.table, err)
		}
		res, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
		if err != nil {
			q.logger.ErrorContext(ctx, "Error deleting rows", "table", step.table, "ids", len(ids), "error", err)
			return counts, fmt.Errorf("failed to delete from %s: %w", step.table, err)
		}
		if step.count == nil {
			continue
		}
		if *step.count, err = res.RowsAffected(); err != nil {
			return counts, fmt.Errorf("failed to get rows affected for %s: %w", step.table, err)
		}
	}
	return counts, nil
}

// --- notifications ---

// InsertNotification inserts a notification row.
func (q *Queries) InsertNotification(ctx context.Context, n *Notification) error {
	query := `
        INSERT INTO notifications (id, user_id, message_id, kind, content, created_at, is_read)
        VALUES (:id, :user_id, :message_id, :kind, :content, :created_at, :is_read);
    `
	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, n); err != nil {
		q.logger.ErrorContext(ctx, "Error inserting notification",
			"user_id", n.UserID, "message_id", n.MessageID, "kind", n.Kind, "error", err)
		return fmt.Errorf("failed to insert notification for message %s: %w", n.MessageID, err)
	}
	return nil
}

// ListNotifications returns userID's notifications, newest first.
func (q *Queries) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, rowid DESC;"

	var ns []Notification
	if err := sqlx.SelectContext(ctx, q.ext, &ns, query, userID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing notifications", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list notifications for %s: %w", userID, err)
	}
	return ns, nil
}

// ListNotificationsForMessage returns every notification about messageID, oldest first.
func (q *Queries) ListNotificationsForMessage(ctx context.Context, messageID string) ([]Notification, error) {
	var ns []Notification
	if err := sqlx.SelectContext(ctx, q.ext, &ns, "SELECT "+notificationColumns+
		" FROM notifications WHERE message_id = ? ORDER BY created_at, rowid;", messageID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing message notifications", "message_id", messageID, "error", err)
		return nil, fmt.Errorf("failed to list notifications for message %s: %w", messageID, err)
	}
	return ns, nil
}

// MarkNotificationsRead marks every unread notification of userID as read.
func (q *Queries) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0;", userID)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error marking notifications read", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to mark notifications read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

// DeleteNotificationsForUser removes every notification targeted at userID.
func (q *Queries) DeleteNotificationsForUser(ctx context.Context, userID string) (int64, error) {
	res, err := q.ext.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?;", userID)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error deleting user notifications", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to delete notifications of %s: %w", userID, err)
	}
	return res.RowsAffected()
}

// --- history ---

// InsertHistoryEntry inserts one pre-edit snapshot.
func (q *Queries) InsertHistoryEntry(ctx context.Context, h *HistoryEntry) error {
	query := `
        INSERT INTO message_history (id, message_id, old_content, edited_at, edited_by)
        VALUES (:id, :message_id, :old_content, :edited_at, :edited_by);
    `
	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, h); err != nil {
		q.logger.ErrorContext(ctx, "Error inserting history entry", "message_id", h.MessageID, "error", err)
		return fmt.Errorf("failed to insert history for message %s: %w", h.MessageID, err)
	}
	return nil
}

// ListHistory returns the edit history of messageID, newest first.
func (q *Queries) ListHistory(ctx context.Context, messageID string) ([]HistoryEntry, error) {
	var hs []HistoryEntry
	if err := sqlx.SelectContext(ctx, q.ext, &hs, `
        SELECT id, message_id, old_content, edited_at, edited_by FROM message_history
        WHERE message_id = ? ORDER BY edited_at DESC, rowid DESC;`, messageID); err != nil {
		q.logger.ErrorContext(ctx, "Error listing history", "message_id", messageID, "error", err)
		return nil, fmt.Errorf("failed to list history of %s: %w", messageID, err)
	}
	return hs, nil
}

// DeleteHistoryByEditor removes every history entry authored by userID.
func (q *Queries) DeleteHistoryByEditor(ctx context.Context, userID string) (int64, error) {
	res, err := q.ext.ExecContext(ctx, "DELETE FROM message_history WHERE edited_by = ?;", userID)
	if err != nil {
		q.logger.ErrorContext(ctx, "Error deleting user history", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to delete history of %s: %w", userID, err)
	}
	return res.RowsAffected()
}
