package tasks

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// newSQLMaintenanceTask creates the scheduled task function for running database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := deps.Clock.Now()

		before, sizeErr := deps.Store.Size(ctx)
		if sizeErr != nil {
			log.WarnContext(ctx, "Could not read database size", "error", sizeErr)
		}

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := deps.Clock.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		attrs := []any{"duration", duration}
		if sizeErr == nil {
			if after, err := deps.Store.Size(ctx); err == nil {
				attrs = append(attrs,
					"size_before", humanize.Bytes(uint64(before)),
					"size_after", humanize.Bytes(uint64(after)),
				)
			}
		}
		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", attrs...)
		return nil
	}
}
