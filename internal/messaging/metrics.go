package messaging

import "github.com/edgard/threadbox/internal/database"

// Metrics receives counters for committed operations. Implementations must
// be safe for concurrent use.
type Metrics interface {
	MessageCreated(reply bool)
	MessageEdited()
	MessagesDeleted(n int64)
	MessagesRead(n int64)
	NotificationCreated(kind database.NotificationKind)
	HistoryRecorded()
	UserDeleted()
	OperationFailed(op, code string)
}

type noopMetrics struct{}

func (noopMetrics) MessageCreated(bool)                           {}
func (noopMetrics) MessageEdited()                                {}
func (noopMetrics) MessagesDeleted(int64)                         {}
func (noopMetrics) MessagesRead(int64)                            {}
func (noopMetrics) NotificationCreated(database.NotificationKind) {}
func (noopMetrics) HistoryRecorded()                              {}
func (noopMetrics) UserDeleted()                                  {}
func (noopMetrics) OperationFailed(string, string)                {}
