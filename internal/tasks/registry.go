// Package tasks holds the scheduled maintenance jobs run by the scheduler.
package tasks

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/config"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered scheduled tasks.
// The keys match the task names used in the scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	tasks := make(map[string]ScheduledTaskFunc)
	tasks[config.TaskSQLMaintenance] = newSQLMaintenanceTask(deps)
	tasks[config.TaskNotificationRetention] = newNotificationRetentionTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
