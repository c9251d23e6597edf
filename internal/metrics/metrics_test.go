package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/messaging"
	"github.com/edgard/threadbox/internal/metrics"
)

var _ messaging.Metrics = (*metrics.Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()
	c := metrics.New("threadbox_test")

	c.MessageCreated(false)
	c.MessageCreated(true)
	c.MessageCreated(true)
	c.MessagesDeleted(3)
	c.NotificationCreated(database.NotificationReply)
	c.OperationFailed("create message", "TRANSACTION")
	c.TaskRun("sql_maintenance", nil)
	c.TaskRun("sql_maintenance", errors.New("locked"))

	series, err := testutil.GatherAndCount(c.Registry(), "threadbox_test_task_runs_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if series != 2 {
		t.Errorf("task_runs_total series = %d, want 2", series)
	}

	expected := `
# HELP threadbox_test_messages_created_total Messages created, by whether they reply to another message.
# TYPE threadbox_test_messages_created_total counter
threadbox_test_messages_created_total{type="reply"} 2
threadbox_test_messages_created_total{type="root"} 1
# HELP threadbox_test_messages_deleted_total Messages removed, including cascaded replies.
# TYPE threadbox_test_messages_deleted_total counter
threadbox_test_messages_deleted_total 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"threadbox_test_messages_created_total", "threadbox_test_messages_deleted_total"); err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()
	c := metrics.New("threadbox_test")
	c.HistoryRecorded()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "threadbox_test_history_entries_total 1") {
		t.Errorf("metrics output missing history counter:\n%s", body)
	}
}
