package messaging

import (
	"time"

	"github.com/edgard/threadbox/internal/database"
)

// MessageView is the caller-facing projection of a message.
type MessageView struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	ParentID   string    `json:"parent_id,omitempty"`
	Depth      int       `json:"thread_depth"`
	Edited     bool      `json:"edited"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func newMessageView(m database.Message) MessageView {
	return MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		ParentID:   m.ParentID.String,
		Depth:      m.Depth,
		Edited:     m.Edited,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

// ThreadEntry is one reply in a ThreadView. Level is the distance from the
// thread root.
type ThreadEntry struct {
	MessageView
	Level int `json:"level"`
}

// ThreadView is a whole thread: the root and its replies in depth-first
// pre-order. FocusID is the message the thread was requested for.
type ThreadView struct {
	FocusID      string        `json:"focus_id"`
	Root         MessageView   `json:"root"`
	Replies      []ThreadEntry `json:"replies"`
	ReplyCount   int           `json:"reply_count"`
	Participants []string      `json:"participants"`
}

// ConversationView is a thread root with its number of direct replies.
type ConversationView struct {
	MessageView
	ReplyCount int `json:"reply_count"`
}

// NotificationView is the caller-facing projection of a notification.
type NotificationView struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id"`
	MessageID string                    `json:"message_id"`
	Kind      database.NotificationKind `json:"kind"`
	Summary   string                    `json:"summary"`
	Read      bool                      `json:"read"`
	CreatedAt time.Time                 `json:"created_at"`
}

func newNotificationView(n database.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		MessageID: n.MessageID,
		Kind:      n.Kind,
		Summary:   n.Content,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// HistoryView is one pre-edit snapshot of a message.
type HistoryView struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	OldContent string    `json:"old_content"`
	EditedAt   time.Time `json:"edited_at"`
	EditedBy   string    `json:"edited_by"`
}

func newHistoryView(h database.HistoryEntry) HistoryView {
	return HistoryView{
		ID:         h.ID,
		MessageID:  h.MessageID,
		OldContent: h.OldContent,
		EditedAt:   h.EditedAt,
		EditedBy:   h.EditedBy,
	}
}
