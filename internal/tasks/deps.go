package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/config"
)

// Store is the part of the database store the scheduled tasks use.
type Store interface {
	RunSQLMaintenance(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
	PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}

// TaskDeps holds the dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  Store
	Config *config.Config
	Clock  clockwork.Clock
}
