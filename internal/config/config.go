// Package config provides configuration loading, validation, and management
// for threadbox. It reads an optional YAML file, applies THREADBOX_*
// environment overrides on top of defaults, and validates the result.
package config

import "time"

// Config defines the application configuration for every component.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite connection settings.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"              validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"min=1,max=64"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"      validate:"min=0,max=5m"`
}

// MessagingConfig tunes the message lifecycle.
type MessagingConfig struct {
	// SummaryLength is how many characters of content a notification keeps.
	SummaryLength    int  `mapstructure:"summary_length"     validate:"min=1,max=1000"`
	MaxContentLength int  `mapstructure:"max_content_length" validate:"min=1"`
	AllowSelfSend    bool `mapstructure:"allow_self_send"`
	NotifyOnEdit     bool `mapstructure:"notify_on_edit"`
	UnreadPageSize   int  `mapstructure:"unread_page_size"   validate:"min=1,max=1000"`
}

// RetentionConfig controls how long read notifications are kept.
type RetentionConfig struct {
	ReadNotificationTTL time.Duration `mapstructure:"read_notification_ttl" validate:"min=1h"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig holds the schedule of a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"omitempty,cron"`
}

// MetricsConfig controls Prometheus exposition. An empty Addr disables the
// HTTP listener; collectors are still registered.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"      validate:"omitempty,hostname_port"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// TelegramConfig enables push delivery of notifications. An empty Token
// disables it. SendRate caps messages per second to the Bot API; 0 disables
// pacing.
type TelegramConfig struct {
	Token        string        `mapstructure:"token"`
	QueueSize    int           `mapstructure:"queue_size"    validate:"min=1"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"  validate:"min=1s,max=2m"`
	SendAttempts uint          `mapstructure:"send_attempts" validate:"min=1,max=10"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"   validate:"min=0,max=1m"`
	SendRate     float64       `mapstructure:"send_rate"     validate:"min=0"`
}
