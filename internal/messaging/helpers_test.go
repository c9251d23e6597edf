package messaging_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/config"
	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/logger"
	"github.com/edgard/threadbox/internal/messaging"
	"github.com/edgard/threadbox/internal/users"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type env struct {
	svc    *messaging.Service
	db     *sqlx.DB
	store  *database.Store
	clock  *clockwork.FakeClock
	pusher *recordingPusher
	stats  *recordingMetrics
	alice  string
	bob    string
	carol  string
}

type envOption func(*config.MessagingConfig)

func withNotifyOnEdit(c *config.MessagingConfig) { c.NotifyOnEdit = true }

func withoutSelfSend(c *config.MessagingConfig) { c.AllowSelfSend = false }

func withPageSize(n int) envOption {
	return func(c *config.MessagingConfig) { c.UnreadPageSize = n }
}

func withMaxContent(n int) envOption {
	return func(c *config.MessagingConfig) { c.MaxContentLength = n }
}

func withSummaryLength(n int) envOption {
	return func(c *config.MessagingConfig) { c.SummaryLength = n }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	db, err := database.NewDB(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "messaging.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	cfg := config.MessagingConfig{
		SummaryLength:    config.DefaultSummaryLength,
		MaxContentLength: config.DefaultMaxContentLength,
		AllowSelfSend:    true,
		UnreadPageSize:   config.DefaultUnreadPageSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.Discard()
	store := database.NewStore(db, log)
	clock := clockwork.NewFakeClockAt(epoch)
	dir := users.NewDirectory(store, clock, log)
	pusher := &recordingPusher{}
	stats := &recordingMetrics{}

	e := &env{
		svc: messaging.NewService(store, messaging.Options{
			Users:     dir,
			Messaging: cfg,
			Clock:     clock,
			Metrics:   stats,
			Pusher:    pusher,
			Logger:    log,
		}),
		db:     db,
		store:  store,
		clock:  clock,
		pusher: pusher,
		stats:  stats,
	}

	ctx := context.Background()
	for name, id := range map[string]*string{"alice": &e.alice, "bob": &e.bob, "carol": &e.carol} {
		u, err := dir.Create(ctx, name)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
		*id = u.ID
	}
	return e
}

// send creates a message and advances the clock so creation times differ.
func (e *env) send(t *testing.T, from, to, content, parent string) messaging.MessageView {
	t.Helper()
	m, err := e.svc.CreateMessage(context.Background(), messaging.CreateMessageInput{
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		ParentID:   parent,
	})
	if err != nil {
		t.Fatalf("CreateMessage(%q) error = %v", content, err)
	}
	e.clock.Advance(time.Second)
	return m
}

func (e *env) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := e.db.Get(&n, query, args...); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed []database.Notification
}

func (p *recordingPusher) Push(n database.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
}

func (p *recordingPusher) kinds() []database.NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]database.NotificationKind, len(p.pushed))
	for i, n := range p.pushed {
		out[i] = n.Kind
	}
	return out
}

// recordingMetrics keeps the counters the tests assert on.
type recordingMetrics struct {
	mu           sync.Mutex
	deleted      int64
	usersDeleted int
}

func (m *recordingMetrics) MessagesDeleted(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted += n
}

func (m *recordingMetrics) UserDeleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersDeleted++
}

func (m *recordingMetrics) snapshot() (deleted int64, usersDeleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted, m.usersDeleted
}

func (*recordingMetrics) MessageCreated(bool)                           {}
func (*recordingMetrics) MessageEdited()                                {}
func (*recordingMetrics) MessagesRead(int64)                            {}
func (*recordingMetrics) NotificationCreated(database.NotificationKind) {}
func (*recordingMetrics) HistoryRecorded()                              {}
func (*recordingMetrics) OperationFailed(string, string)                {}
