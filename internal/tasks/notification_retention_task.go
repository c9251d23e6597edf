package tasks

import (
	"context"
	"fmt"

	"github.com/edgard/threadbox/internal/config"
)

// newNotificationRetentionTask deletes read notifications older than the
// configured retention window. Unread notifications are never purged.
func newNotificationRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "notification_retention")

	ttl := config.DefaultReadNotificationTTL
	if deps.Config != nil && deps.Config.Retention.ReadNotificationTTL > 0 {
		ttl = deps.Config.Retention.ReadNotificationTTL
	}

	return func(ctx context.Context) error {
		cutoff := deps.Clock.Now().Add(-ttl)

		purged, err := deps.Store.PurgeReadNotifications(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Notification retention task failed", "error", err)
			return fmt.Errorf("notification retention failed: %w", err)
		}

		log.InfoContext(ctx, "Purged read notifications", "count", purged, "cutoff", cutoff)
		return nil
	}
}
