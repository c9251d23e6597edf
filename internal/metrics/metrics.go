// Package metrics exposes Prometheus counters for the messaging core, the
// scheduled tasks and push delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/threadbox/internal/database"
)

// Collector holds every counter threadbox reports. It satisfies
// messaging.Metrics.
type Collector struct {
	registry *prometheus.Registry

	messagesCreated   *prometheus.CounterVec
	messagesEdited    prometheus.Counter
	messagesDeleted   prometheus.Counter
	messagesRead      prometheus.Counter
	notifications     *prometheus.CounterVec
	historyEntries    prometheus.Counter
	usersDeleted      prometheus.Counter
	operationFailures *prometheus.CounterVec
	taskRuns          *prometheus.CounterVec
	pushDeliveries    *prometheus.CounterVec
	pushQueueLen      prometheus.Gauge
}

// New creates a Collector registered on its own registry, alongside the Go
// runtime and process collectors.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		messagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_created_total",
			Help:      "Messages created, by whether they reply to another message.",
		}, []string{"type"}),
		messagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_edited_total",
			Help:      "Content changes committed.",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed, including cascaded replies.",
		}),
		messagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_marked_read_total",
			Help:      "Messages transitioned from unread to read.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications written, by kind.",
		}, []string{"kind"}),
		historyEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_entries_total",
			Help:      "Pre-edit snapshots written.",
		}),
		usersDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_deleted_total",
			Help:      "User accounts removed.",
		}),
		operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed mutations, by operation and error code.",
		}, []string{"op", "code"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Scheduled task executions, by task and result.",
		}, []string{"task", "result"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push notification attempts, by result.",
		}, []string{"result"}),
		pushQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_queue_length",
			Help:      "Notifications waiting for push delivery.",
		}),
	}

	c.registry = reg
	reg.MustRegister(
		c.messagesCreated, c.messagesEdited, c.messagesDeleted, c.messagesRead,
		c.notifications, c.historyEntries, c.usersDeleted, c.operationFailures,
		c.taskRuns, c.pushDeliveries, c.pushQueueLen,
	)
	return c
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) MessageCreated(reply bool) {
	kind := "root"
	if reply {
		kind = "reply"
	}
	c.messagesCreated.WithLabelValues(kind).Inc()
}

func (c *Collector) MessageEdited()          { c.messagesEdited.Inc() }
func (c *Collector) MessagesDeleted(n int64) { c.messagesDeleted.Add(float64(n)) }
func (c *Collector) MessagesRead(n int64)    { c.messagesRead.Add(float64(n)) }
func (c *Collector) HistoryRecorded()        { c.historyEntries.Inc() }
func (c *Collector) UserDeleted()            { c.usersDeleted.Inc() }

func (c *Collector) NotificationCreated(kind database.NotificationKind) {
	c.notifications.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) OperationFailed(op, code string) {
	c.operationFailures.WithLabelValues(op, code).Inc()
}

// TaskRun records one scheduled task execution.
func (c *Collector) TaskRun(task string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.taskRuns.WithLabelValues(task, result).Inc()
}

// PushDelivered records one push attempt with result "sent", "skipped",
// "dropped" or "error".
func (c *Collector) PushDelivered(result string) {
	c.pushDeliveries.WithLabelValues(result).Inc()
}

// PushQueueLength reports the current push queue depth.
func (c *Collector) PushQueueLength(n int) {
	c.pushQueueLen.Set(float64(n))
}
