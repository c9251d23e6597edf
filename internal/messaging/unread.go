package messaging

import (
	"context"
	"iter"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// UnreadIndex is the query surface over message read state. Unread
// filtering is only reachable through its named operations.
type UnreadIndex struct {
	db       *database.Store
	pageSize int
}

// NewUnreadIndex creates an UnreadIndex that fetches pageSize rows per query.
func NewUnreadIndex(db *database.Store, pageSize int) *UnreadIndex {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &UnreadIndex{db: db, pageSize: pageSize}
}

// UnreadFor yields the unread messages received by user, newest first.
// Pages are fetched lazily by keyset, so each range starts from the current
// top of the inbox. After an error is yielded the sequence ends.
func (u *UnreadIndex) UnreadFor(ctx context.Context, user string) iter.Seq2[database.Message, error] {
	return func(yield func(database.Message, error) bool) {
		if user == "" {
			yield(database.Message{}, errs.NewValidationError("user is required", nil))
			return
		}

		q := u.db.Reader()
		var cursor *database.UnreadCursor
		for {
			page, err := q.ListUnreadPage(ctx, user, cursor, u.pageSize)
			if err != nil {
				yield(database.Message{}, errs.NewDatabaseError("failed to list unread messages", err))
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
			}
			if len(page) < u.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &database.UnreadCursor{CreatedAt: last.CreatedAt, Seq: last.Seq}
		}
	}
}

// UnreadCount returns how many unread messages user has.
func (u *UnreadIndex) UnreadCount(ctx context.Context, user string) (int, error) {
	if user == "" {
		return 0, errs.NewValidationError("user is required", nil)
	}
	n, err := u.db.Reader().CountUnread(ctx, user)
	if err != nil {
		return 0, errs.NewDatabaseError("failed to count unread messages", err)
	}
	return n, nil
}

// UnreadFrom returns the unread messages sender sent to receiver, newest first.
func (u *UnreadIndex) UnreadFrom(ctx context.Context, receiver, sender string) ([]database.Message, error) {
	if receiver == "" || sender == "" {
		return nil, errs.NewValidationError("receiver and sender are required", nil)
	}
	msgs, err := u.db.Reader().ListUnreadFrom(ctx, receiver, sender)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to list unread messages", err)
	}
	return msgs, nil
}
