// Package users is the default identity collaborator of the messaging core:
// it answers whether a user exists and whether two ids name different users,
// and manages the user rows those answers come from.
package users

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// Directory resolves and manages users.
type Directory struct {
	store  *database.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewDirectory creates a Directory. A nil clock uses the real clock.
func NewDirectory(store *database.Store, clock clockwork.Clock, logger *slog.Logger) *Directory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, clock: clock, logger: logger.With("component", "users")}
}

// UserExists reports whether id names a known user.
func (d *Directory) UserExists(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	return d.store.Reader().UserExists(ctx, id)
}

// UsersDiffer reports whether a and b identify different users.
func (d *Directory) UsersDiffer(a, b string) bool {
	return a != b
}

// Create registers a new user with a generated id.
func (d *Directory) Create(ctx context.Context, username string) (*database.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errs.NewValidationError("username is required", nil)
	}

	u := &database.User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: d.clock.Now().UTC(),
	}

	// The lookup and the insert share one write transaction, so concurrent
	// creates of the same name serialize and the loser sees the winner's row.
	err := d.store.InTx(ctx, func(q *database.Queries) error {
		existing, err := q.GetUserByUsername(ctx, username)
		if err != nil {
			return errs.NewDatabaseError("failed to look up username", err)
		}
		if existing != nil {
			return errs.NewValidationError("username \""+username+"\" is already taken", nil)
		}
		if err := q.InsertUser(ctx, u); err != nil {
			return errs.NewDatabaseError("failed to create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "User created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Get returns the user with id or a NotFoundError.
func (d *Directory) Get(ctx context.Context, id string) (*database.User, error) {
	u, err := d.store.Reader().GetUser(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to get user", err)
	}
	if u == nil {
		return nil, errs.NewNotFoundError("user", id)
	}
	return u, nil
}

// UserByTelegramChat returns the user linked to chatID or a NotFoundError.
func (d *Directory) UserByTelegramChat(ctx context.Context, chatID int64) (*database.User, error) {
	u, err := d.store.Reader().GetUserByTelegramChatID(ctx, chatID)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to look up telegram chat", err)
	}
	if u == nil {
		return nil, errs.NewNotFoundError("telegram chat", strconv.FormatInt(chatID, 10))
	}
	return u, nil
}

// LinkTelegram stores the Telegram chat that push notifications for id go to.
func (d *Directory) LinkTelegram(ctx context.Context, id string, chatID int64) error {
	return d.setChat(ctx, id, sql.NullInt64{Int64: chatID, Valid: true})
}

// UnlinkTelegram removes the Telegram chat of id.
func (d *Directory) UnlinkTelegram(ctx context.Context, id string) error {
	return d.setChat(ctx, id, sql.NullInt64{})
}

func (d *Directory) setChat(ctx context.Context, id string, chatID sql.NullInt64) error {
	n, err := d.store.Reader().SetTelegramChatID(ctx, id, chatID)
	if err != nil {
		return errs.NewDatabaseError("failed to update telegram chat", err)
	}
	if n == 0 {
		return errs.NewNotFoundError("user", id)
	}
	return nil
}

// TelegramChatID returns the linked chat of id. ok is false when the user
// is unknown or has no chat linked.
func (d *Directory) TelegramChatID(ctx context.Context, id string) (chatID int64, ok bool, err error) {
	u, err := d.store.Reader().GetUser(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if u == nil || !u.TelegramChatID.Valid {
		return 0, false, nil
	}
	return u.TelegramChatID.Int64, true, nil
}
