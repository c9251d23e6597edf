package database

import (
	"database/sql"
	"time"
)

// User is an account that can send and receive messages.
type User struct {
	ID             string        `db:"id"`
	Username       string        `db:"username"`
	TelegramChatID sql.NullInt64 `db:"telegram_chat_id"`
	CreatedAt      time.Time     `db:"created_at"`
}

// Message is a single message in a reply forest. ParentID is NULL for
// thread roots; Depth is the number of parent hops to the root.
type Message struct {
	Seq        int64          `db:"seq"` // insertion order, tiebreaker for equal timestamps
	ID         string         `db:"id"`
	SenderID   string         `db:"sender_id"`
	ReceiverID string         `db:"receiver_id"`
	Content    string         `db:"content"`
	CreatedAt  time.Time      `db:"created_at"`
	Edited     bool           `db:"is_edited"`
	Read       bool           `db:"is_read"`
	ParentID   sql.NullString `db:"parent_id"`
	Depth      int            `db:"thread_depth"`
}

// IsRoot reports whether m starts a thread.
func (m *Message) IsRoot() bool {
	return !m.ParentID.Valid
}

// Conversation is a thread root together with its direct reply count.
type Conversation struct {
	Message
	ReplyCount int `db:"reply_count"`
}

// NotificationKind classifies why a notification was produced.
type NotificationKind string

const (
	NotificationNewMessage NotificationKind = "new_message"
	NotificationReply      NotificationKind = "message_reply"
	NotificationEdited     NotificationKind = "message_edited"
)

// Notification tells a user about activity on a message.
type Notification struct {
	ID        string           `db:"id"`
	UserID    string           `db:"user_id"`
	MessageID string           `db:"message_id"`
	Kind      NotificationKind `db:"kind"`
	Content   string           `db:"content"`
	CreatedAt time.Time        `db:"created_at"`
	Read      bool             `db:"is_read"`
}

// HistoryEntry is the content of a message as it was before one edit.
type HistoryEntry struct {
	ID         string    `db:"id"`
	MessageID  string    `db:"message_id"`
	OldContent string    `db:"old_content"`
	EditedAt   time.Time `db:"edited_at"`
	EditedBy   string    `db:"edited_by"`
}

// DeleteCounts reports the rows removed by a cascading delete.
type DeleteCounts struct {
	Messages      int64
	Notifications int64
	History       int64
}
