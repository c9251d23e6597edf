package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	// Database defaults
	DefaultDBPath            = "threadbox.db"
	DefaultDBMaxOpenConns    = 1 // SQLite allows a single writer
	DefaultDBMaxIdleConns    = 1
	DefaultDBConnMaxLifetime = time.Hour
	DefaultDBBusyTimeout     = 5 * time.Second

	// Messaging defaults
	DefaultSummaryLength    = 100
	DefaultMaxContentLength = 10000
	DefaultAllowSelfSend    = true
	DefaultNotifyOnEdit     = false
	DefaultUnreadPageSize   = 50

	// Retention defaults
	DefaultReadNotificationTTL = 30 * 24 * time.Hour

	// Metrics defaults
	DefaultMetricsNamespace = "threadbox"

	// Telegram defaults
	DefaultTelegramQueueSize    = 256
	DefaultTelegramSendTimeout  = 10 * time.Second
	DefaultTelegramSendAttempts = 3
	DefaultTelegramRetryDelay   = 500 * time.Millisecond
	DefaultTelegramSendRate     = 25.0
)

// Task names known to the scheduler.
const (
	TaskSQLMaintenance        = "sql_maintenance"
	TaskNotificationRetention = "notification_retention"
)

// DefaultTasks is the schedule applied when the config file names none.
var DefaultTasks = map[string]TaskConfig{
	TaskSQLMaintenance:        {Enabled: true, Schedule: "0 4 * * 0"},
	TaskNotificationRetention: {Enabled: true, Schedule: "30 3 * * *"},
}
