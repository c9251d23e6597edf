package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgard/threadbox/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDBPath)
	}
	if cfg.Messaging.SummaryLength != 100 {
		t.Errorf("Messaging.SummaryLength = %d, want 100", cfg.Messaging.SummaryLength)
	}
	if !cfg.Messaging.AllowSelfSend {
		t.Error("Messaging.AllowSelfSend = false, want true")
	}
	if cfg.Retention.ReadNotificationTTL != DefaultReadNotificationTTL {
		t.Errorf("Retention.ReadNotificationTTL = %v, want %v", cfg.Retention.ReadNotificationTTL, DefaultReadNotificationTTL)
	}
	for name, want := range DefaultTasks {
		got, ok := cfg.Scheduler.Tasks[name]
		if !ok {
			t.Errorf("task %q missing from defaults", name)
			continue
		}
		if got != want {
			t.Errorf("task %q = %+v, want %+v", name, got, want)
		}
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  json: true
database:
  path: /tmp/threadbox-test.db
  busy_timeout: 2s
messaging:
  summary_length: 40
  allow_self_send: false
  notify_on_edit: true
scheduler:
  tasks:
    sql_maintenance:
      enabled: false
metrics:
  addr: ":9464"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Database.Path != "/tmp/threadbox-test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Database.BusyTimeout = %v, want 2s", cfg.Database.BusyTimeout)
	}
	if cfg.Messaging.SummaryLength != 40 || cfg.Messaging.AllowSelfSend || !cfg.Messaging.NotifyOnEdit {
		t.Errorf("Messaging = %+v", cfg.Messaging)
	}
	if cfg.Scheduler.Tasks[TaskSQLMaintenance].Enabled {
		t.Error("sql_maintenance should be disabled by the file")
	}
	if cfg.Scheduler.Tasks[TaskSQLMaintenance].Schedule != DefaultTasks[TaskSQLMaintenance].Schedule {
		t.Errorf("sql_maintenance schedule = %q, want default", cfg.Scheduler.Tasks[TaskSQLMaintenance].Schedule)
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv("THREADBOX_LOG_LEVEL", "error")
	t.Setenv("THREADBOX_MESSAGING_UNREAD_PAGE_SIZE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
	if cfg.Messaging.UnreadPageSize != 7 {
		t.Errorf("Messaging.UnreadPageSize = %d, want 7", cfg.Messaging.UnreadPageSize)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown log level", body: "log:\n  level: loud\n"},
		{name: "bad cron", body: "scheduler:\n  tasks:\n    sql_maintenance:\n      enabled: true\n      schedule: \"every day\"\n"},
		{name: "enabled without schedule", body: "scheduler:\n  tasks:\n    custom:\n      enabled: true\n"},
		{name: "zero summary", body: "messaging:\n  summary_length: 0\n"},
		{name: "idle above open", body: "database:\n  max_open_conns: 1\n  max_idle_conns: 4\n"},
		{name: "pooled memory db", body: "database:\n  path: \":memory:\"\n  max_open_conns: 4\n  max_idle_conns: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() error = nil, want configuration error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
			if errs.Code(err) != errs.CodeConfig {
				t.Errorf("Code() = %q, want %q", errs.Code(err), errs.CodeConfig)
			}
		})
	}
}
