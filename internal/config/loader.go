package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/edgard/threadbox/internal/errs"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. THREADBOX_DATABASE_PATH for database.path.
const EnvPrefix = "THREADBOX"

// ErrConfiguration marks every configuration failure.
var ErrConfiguration = errors.New("configuration error")

// Load loads and validates configuration from:
// 1. Default values
// 2. .env file in the working directory, if any
// 3. the YAML file at configPath, if it exists
// 4. THREADBOX_* environment variables
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NewConfigError("failed to load .env file", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, errs.NewConfigError("failed to read config file", fmt.Errorf("%w: %v", ErrConfiguration, err))
			}
			slog.Info("configuration file not found, using defaults", "path", configPath)
		} else {
			slog.Debug("configuration file loaded", "path", configPath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.NewConfigError("failed to parse config", fmt.Errorf("%w: %v", ErrConfiguration, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errs.NewConfigError("invalid configuration", err)
	}

	slog.Info("configuration loaded successfully",
		"log_level", cfg.Log.Level,
		"db_path", cfg.Database.Path,
		"metrics_addr", cfg.Metrics.Addr,
		"telegram_enabled", cfg.Telegram.Token != "",
		"tasks", len(cfg.Scheduler.Tasks))

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
// Every key is registered here so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	// Database defaults
	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.busy_timeout", DefaultDBBusyTimeout)

	// Messaging defaults
	v.SetDefault("messaging.summary_length", DefaultSummaryLength)
	v.SetDefault("messaging.max_content_length", DefaultMaxContentLength)
	v.SetDefault("messaging.allow_self_send", DefaultAllowSelfSend)
	v.SetDefault("messaging.notify_on_edit", DefaultNotifyOnEdit)
	v.SetDefault("messaging.unread_page_size", DefaultUnreadPageSize)

	// Retention defaults
	v.SetDefault("retention.read_notification_ttl", DefaultReadNotificationTTL)

	// Scheduler defaults
	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	// Metrics defaults
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)

	// Telegram defaults
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.queue_size", DefaultTelegramQueueSize)
	v.SetDefault("telegram.send_timeout", DefaultTelegramSendTimeout)
	v.SetDefault("telegram.send_attempts", DefaultTelegramSendAttempts)
	v.SetDefault("telegram.retry_delay", DefaultTelegramRetryDelay)
	v.SetDefault("telegram.send_rate", DefaultTelegramSendRate)
}
