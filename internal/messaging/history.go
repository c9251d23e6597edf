package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/edgard/threadbox/internal/database"
)

// HistoryRecorder snapshots the pre-image of a message before its content
// is overwritten. It writes through the triggering transaction, so the
// snapshot and the overwrite commit or roll back together.
type HistoryRecorder struct {
	metrics Metrics
}

func (r *HistoryRecorder) register(h *Hooks) {
	h.OnContentChanging("history_recorder", r.onChanging)
}

func (r *HistoryRecorder) onChanging(ctx context.Context, q *database.Queries, ev MessageContentChanging) error {
	entry := database.HistoryEntry{
		ID:         uuid.NewString(),
		MessageID:  ev.Message.ID,
		OldContent: ev.OldContent,
		EditedAt:   ev.ChangedAt,
		EditedBy:   ev.Message.SenderID,
	}
	if err := q.InsertHistoryEntry(ctx, &entry); err != nil {
		return err
	}
	q.OnCommit(r.metrics.HistoryRecorded)
	return nil
}
