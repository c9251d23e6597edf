package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/threadbox/internal/errs"
)

// Store owns the connection pool and hands out Queries, either bound to the
// pool for reads or to a single transaction for mutations.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by a connected sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reader returns Queries that run directly against the pool. OnCommit
// callbacks registered on it run immediately.
func (s *Store) Reader() *Queries {
	return &Queries{ext: s.db, logger: s.logger}
}

// InTx runs fn inside one transaction. The transaction commits only when fn
// returns nil; any error from fn rolls it back and is returned as is. A
// failed begin or commit is reported as a TransactionError. Callbacks
// registered with Queries.OnCommit run after a successful commit, in order.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return errs.NewTransactionError("failed to begin transaction", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	q := &Queries{ext: tx, logger: s.logger, inTx: true}
	if err := fn(q); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return errs.NewTransactionError("failed to commit transaction", err)
	}
	tx = nil

	for _, hook := range q.onCommit {
		hook()
	}
	return nil
}

// RunSQLMaintenance performs VACUUM followed by PRAGMA optimize.
// VACUUM cannot run inside a transaction, so it goes straight to the pool.
func (s *Store) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running VACUUM on database")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run VACUUM", "error", err)
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run PRAGMA optimize", "error", err)
		return fmt.Errorf("failed to run PRAGMA optimize: %w", err)
	}

	s.logger.InfoContext(ctx, "SQL maintenance completed")
	return nil
}

// Size returns the database size in bytes as page_count * page_size.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.GetContext(ctx, &pageCount, "PRAGMA page_count;"); err != nil {
		return 0, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := s.db.GetContext(ctx, &pageSize, "PRAGMA page_size;"); err != nil {
		return 0, fmt.Errorf("failed to read page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

// PurgeReadNotifications deletes read notifications created before cutoff
// and returns how many were removed.
func (s *Store) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE is_read = 1 AND created_at < ?;", cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to purge read notifications", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to purge read notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for notification purge: %w", err)
	}
	s.logger.InfoContext(ctx, "Purged read notifications", "count", n, "cutoff", cutoff)
	return n, nil
}
