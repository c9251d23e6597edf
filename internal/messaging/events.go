package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgard/threadbox/internal/database"
)

// MessageCreated is emitted after a new message row is inserted, inside the
// creating transaction.
type MessageCreated struct {
	Message database.Message
}

// MessageContentChanging is emitted before a content UPDATE executes, inside
// the same transaction. Message still holds the stored (old) content.
type MessageContentChanging struct {
	Message    database.Message
	OldContent string
	NewContent string
	ChangedAt  time.Time
}

// CreatedHandler reacts to MessageCreated. q is bound to the triggering
// transaction; a non-nil error aborts it.
type CreatedHandler func(ctx context.Context, q *database.Queries, ev MessageCreated) error

// ChangingHandler reacts to MessageContentChanging. q is bound to the
// triggering transaction; a non-nil error aborts it.
type ChangingHandler func(ctx context.Context, q *database.Queries, ev MessageContentChanging) error

// Hooks holds the synchronous observer lists of the message lifecycle.
// Handlers run in registration order and the first error stops the chain.
type Hooks struct {
	mu       sync.RWMutex
	created  []namedCreated
	changing []namedChanging
}

type namedCreated struct {
	name string
	fn   CreatedHandler
}

type namedChanging struct {
	name string
	fn   ChangingHandler
}

// OnMessageCreated registers fn under name.
func (h *Hooks) OnMessageCreated(name string, fn CreatedHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, namedCreated{name: name, fn: fn})
}

// OnContentChanging registers fn under name.
func (h *Hooks) OnContentChanging(name string, fn ChangingHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changing = append(h.changing, namedChanging{name: name, fn: fn})
}

func (h *Hooks) emitCreated(ctx context.Context, q *database.Queries, ev MessageCreated) error {
	h.mu.RLock()
	handlers := h.created
	h.mu.RUnlock()

	for _, hd := range handlers {
		if err := hd.fn(ctx, q, ev); err != nil {
			return fmt.Errorf("%s handler failed on message %s: %w", hd.name, ev.Message.ID, err)
		}
	}
	return nil
}

func (h *Hooks) emitChanging(ctx context.Context, q *database.Queries, ev MessageContentChanging) error {
	h.mu.RLock()
	handlers := h.changing
	h.mu.RUnlock()

	for _, hd := range handlers {
		if err := hd.fn(ctx, q, ev); err != nil {
			return fmt.Errorf("%s handler failed on message %s: %w", hd.name, ev.Message.ID, err)
		}
	}
	return nil
}
