package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/threadbox/internal/config"
	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*database.Store, *sqlx.DB) {
	t.Helper()
	db, err := database.NewDB(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		BusyTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	return database.NewStore(db, nil), db
}

func seedUsers(t *testing.T, s *database.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := s.Reader().InsertUser(ctx, &database.User{ID: id, Username: id, CreatedAt: base}); err != nil {
			t.Fatalf("InsertUser(%s) error = %v", id, err)
		}
	}
}

func insertMessage(t *testing.T, s *database.Store, id, sender, receiver, parent string, at time.Time) *database.Message {
	t.Helper()
	m := &database.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "content of " + id,
		CreatedAt:  at,
	}
	if parent != "" {
		m.ParentID = sql.NullString{String: parent, Valid: true}
	}
	if err := s.Reader().InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("InsertMessage(%s) error = %v", id, err)
	}
	return m
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		wantWAL  bool
		wantPath string
	}{
		{name: "file", path: "/var/lib/threadbox.db", wantWAL: true, wantPath: "/var/lib/threadbox.db"},
		{name: "memory", path: ":memory:", wantWAL: false, wantPath: ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dsn := database.BuildDSN(tt.path, 1500*time.Millisecond)
			if got := database.ExtractDBNameFromPath(dsn); got != tt.wantPath {
				t.Errorf("ExtractDBNameFromPath(%q) = %q, want %q", dsn, got, tt.wantPath)
			}
			for _, want := range []string{"foreign_keys%281%29", "busy_timeout%281500%29", "_txlock=immediate"} {
				if !strings.Contains(dsn, want) {
					t.Errorf("DSN %q missing %q", dsn, want)
				}
			}
			if got := strings.Contains(dsn, "journal_mode%28WAL%29"); got != tt.wantWAL {
				t.Errorf("DSN %q WAL = %v, want %v", dsn, got, tt.wantWAL)
			}
		})
	}
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"threadbox.db":                      "threadbox.db",
		"file:threadbox.db":                 "threadbox.db",
		"file:/tmp/my%20db.sqlite?mode=rwc": "/tmp/my db.sqlite",
	}
	for in, want := range tests {
		if got := database.ExtractDBNameFromPath(in); got != want {
			t.Errorf("ExtractDBNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewDBRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := database.NewDB(config.DatabaseConfig{}); err == nil {
		t.Fatal("NewDB() error = nil for empty path")
	}
}

func TestInTxCommitRunsHooks(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	var ran []string
	err := s.InTx(ctx, func(q *database.Queries) error {
		q.OnCommit(func() { ran = append(ran, "first") })
		q.OnCommit(func() { ran = append(ran, "second") })
		if len(ran) != 0 {
			t.Error("hooks ran before commit")
		}
		return q.InsertUser(ctx, &database.User{ID: "u1", Username: "alice", CreatedAt: base})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, ran); diff != "" {
		t.Errorf("hooks mismatch (-want +got):\n%s", diff)
	}

	u, err := s.Reader().GetUser(ctx, "u1")
	if err != nil || u == nil {
		t.Fatalf("GetUser() = %v, %v; want committed user", u, err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	hookRan := false
	err := s.InTx(ctx, func(q *database.Queries) error {
		q.OnCommit(func() { hookRan = true })
		if err := q.InsertUser(ctx, &database.User{ID: "u1", Username: "alice", CreatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	if hookRan {
		t.Error("OnCommit hook ran after rollback")
	}
	if u, _ := s.Reader().GetUser(ctx, "u1"); u != nil {
		t.Errorf("user visible after rollback: %+v", u)
	}
}

func TestInTxBeginFailureIsTransactionError(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := s.InTx(context.Background(), func(*database.Queries) error { return nil })
	if !errs.IsTransaction(err) {
		t.Fatalf("InTx() error = %v, want TransactionError", err)
	}
}

func TestGetMessageMissingReturnsNil(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	m, err := s.Reader().GetMessage(context.Background(), "nope")
	if err != nil || m != nil {
		t.Fatalf("GetMessage() = %v, %v; want nil, nil", m, err)
	}
}

func TestInsertMessageRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	seedUsers(t, s, "a", "b")

	root := insertMessage(t, s, "m1", "a", "b", "", base)
	reply := insertMessage(t, s, "m2", "b", "a", "m1", base.Add(time.Second))
	if reply.Seq <= root.Seq {
		t.Errorf("seq not increasing: root=%d reply=%d", root.Seq, reply.Seq)
	}

	got, err := s.Reader().GetMessage(context.Background(), "m2")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if diff := cmp.Diff(reply, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if got.IsRoot() {
		t.Error("reply reported as root")
	}
}

func TestListDescendants(t *testing.T) {
	t.Parallel()
	s, db := newTestStore(t)
	seedUsers(t, s, "a", "b")
	ctx := context.Background()

	insertMessage(t, s, "r", "a", "b", "", base)
	insertMessage(t, s, "c1", "b", "a", "r", base.Add(1*time.Second))
	insertMessage(t, s, "c2", "a", "b", "r", base.Add(2*time.Second))
	insertMessage(t, s, "g1", "a", "b", "c1", base.Add(3*time.Second))
	insertMessage(t, s, "other", "a", "b", "", base.Add(4*time.Second))

	got, err := s.Reader().ListDescendants(ctx, "r")
	if err != nil {
		t.Fatalf("ListDescendants() error = %v", err)
	}
	ids := map[string]bool{}
	for _, m := range got {
		ids[m.ID] = true
	}
	if diff := cmp.Diff(map[string]bool{"c1": true, "c2": true, "g1": true}, ids); diff != "" {
		t.Errorf("descendants mismatch (-want +got):\n%s", diff)
	}

	// A corrupted cycle r -> c1 -> g1 -> r must still terminate.
	if _, err := db.ExecContext(ctx, "UPDATE messages SET parent_id = 'g1' WHERE id = 'r';"); err != nil {
		t.Fatalf("corrupt parent link: %v", err)
	}
	got, err = s.Reader().ListDescendants(ctx, "r")
	if err != nil {
		t.Fatalf("ListDescendants() with cycle error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("ListDescendants() with cycle returned %d rows, want 4 (including r)", len(got))
	}
}

func TestUnreadQueries(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	seedUsers(t, s, "a", "b", "c")
	ctx := context.Background()
	q := s.Reader()

	// Two messages share a timestamp so seq decides their order.
	insertMessage(t, s, "m1", "a", "b", "", base)
	insertMessage(t, s, "m2", "c", "b", "", base.Add(time.Minute))
	insertMessage(t, s, "m3", "a", "b", "", base.Add(time.Minute))
	insertMessage(t, s, "m4", "a", "c", "", base.Add(2*time.Minute))

	var ids []string
	var cursor *database.UnreadCursor
	for {
		page, err := q.ListUnreadPage(ctx, "b", cursor, 2)
		if err != nil {
			t.Fatalf("ListUnreadPage() error = %v", err)
		}
		for _, m := range page {
			ids = append(ids, m.ID)
		}
		if len(page) < 2 {
			break
		}
		last := page[len(page)-1]
		cursor = &database.UnreadCursor{CreatedAt: last.CreatedAt, Seq: last.Seq}
	}
	if diff := cmp.Diff([]string{"m3", "m2", "m1"}, ids); diff != "" {
		t.Errorf("unread order mismatch (-want +got):\n%s", diff)
	}

	from, err := q.ListUnreadFrom(ctx, "b", "a")
	if err != nil {
		t.Fatalf("ListUnreadFrom() error = %v", err)
	}
	if len(from) != 2 || from[0].ID != "m3" || from[1].ID != "m1" {
		t.Errorf("ListUnreadFrom() = %v, want [m3 m1]", from)
	}

	n, err := q.MarkMessagesRead(ctx, "b", []string{"m1", "m4"})
	if err != nil {
		t.Fatalf("MarkMessagesRead(ids) error = %v", err)
	}
	if n != 1 {
		t.Errorf("MarkMessagesRead(ids) = %d, want 1 (m4 belongs to c)", n)
	}

	n, err = q.MarkMessagesRead(ctx, "b", nil)
	if err != nil {
		t.Fatalf("MarkMessagesRead(all) error = %v", err)
	}
	if n != 2 {
		t.Errorf("MarkMessagesRead(all) = %d, want 2", n)
	}
	if count, _ := q.CountUnread(ctx, "b"); count != 0 {
		t.Errorf("CountUnread() = %d, want 0", count)
	}
}

func TestDeleteMessagesRemovesDependents(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	seedUsers(t, s, "a", "b")
	ctx := context.Background()
	q := s.Reader()

	insertMessage(t, s, "m1", "a", "b", "", base)
	insertMessage(t, s, "m2", "b", "a", "m1", base.Add(time.Second))
	for i, id := range []string{"m1", "m2"} {
		if err := q.InsertNotification(ctx, &database.Notification{
			ID: "n" + id, UserID: "b", MessageID: id, Kind: database.NotificationNewMessage,
			Content: "hi", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("InsertNotification() error = %v", err)
		}
	}
	if err := q.InsertHistoryEntry(ctx, &database.HistoryEntry{
		ID: "h1", MessageID: "m1", OldContent: "old", EditedAt: base, EditedBy: "a",
	}); err != nil {
		t.Fatalf("InsertHistoryEntry() error = %v", err)
	}

	counts, err := q.DeleteMessages(ctx, []string{"m2", "m1"})
	if err != nil {
		t.Fatalf("DeleteMessages() error = %v", err)
	}
	want := database.DeleteCounts{Messages: 2, Notifications: 2, History: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteMessagesCountsCascadedReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "root first", ids: []string{"m1", "m2", "m3"}},
		{name: "leaf first", ids: []string{"m3", "m2", "m1"}},
		{name: "middle first", ids: []string{"m2", "m1", "m3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, db := newTestStore(t)
			seedUsers(t, s, "a", "b")
			ctx := context.Background()

			insertMessage(t, s, "m1", "a", "b", "", base)
			insertMessage(t, s, "m2", "b", "a", "m1", base.Add(time.Second))
			insertMessage(t, s, "m3", "a", "b", "m2", base.Add(2*time.Second))

			var counts database.DeleteCounts
			err := s.InTx(ctx, func(q *database.Queries) error {
				var err error
				counts, err = q.DeleteMessages(ctx, tt.ids)
				return err
			})
			if err != nil {
				t.Fatalf("DeleteMessages() error = %v", err)
			}
			if counts.Messages != 3 {
				t.Errorf("counts.Messages = %d, want 3", counts.Messages)
			}

			var left int
			if err := db.Get(&left, "SELECT COUNT(*) FROM messages;"); err != nil {
				t.Fatalf("count messages: %v", err)
			}
			if left != 0 {
				t.Errorf("messages left = %d, want 0", left)
			}
		})
	}
}

func TestConversations(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	seedUsers(t, s, "a", "b")
	ctx := context.Background()

	insertMessage(t, s, "r1", "a", "b", "", base)
	insertMessage(t, s, "r2", "a", "b", "", base.Add(time.Hour))
	insertMessage(t, s, "x1", "b", "a", "r1", base.Add(time.Minute))
	insertMessage(t, s, "x2", "b", "a", "r1", base.Add(2*time.Minute))
	insertMessage(t, s, "x3", "a", "b", "x1", base.Add(3*time.Minute))

	convs, err := s.Reader().ListConversations(ctx, "b")
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	got := map[string]int{}
	var order []string
	for _, c := range convs {
		got[c.ID] = c.ReplyCount
		order = append(order, c.ID)
	}
	if diff := cmp.Diff([]string{"r2", "r1"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"r1": 2, "r2": 0}, got); diff != "" {
		t.Errorf("reply counts mismatch (-want +got):\n%s", diff)
	}
}

func TestPurgeReadNotifications(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	seedUsers(t, s, "a", "b")
	ctx := context.Background()
	q := s.Reader()

	insertMessage(t, s, "m1", "a", "b", "", base)
	notifs := []database.Notification{
		{ID: "old-read", CreatedAt: base.Add(-48 * time.Hour), Read: true},
		{ID: "old-unread", CreatedAt: base.Add(-48 * time.Hour)},
		{ID: "new-read", CreatedAt: base, Read: true},
	}
	for i := range notifs {
		n := notifs[i]
		n.UserID, n.MessageID, n.Kind, n.Content = "b", "m1", database.NotificationNewMessage, "x"
		if err := q.InsertNotification(ctx, &n); err != nil {
			t.Fatalf("InsertNotification() error = %v", err)
		}
	}

	removed, err := s.PurgeReadNotifications(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeReadNotifications() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PurgeReadNotifications() = %d, want 1", removed)
	}
	left, _ := q.ListNotifications(ctx, "b", false)
	if len(left) != 2 {
		t.Errorf("notifications left = %d, want 2", len(left))
	}
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.RunSQLMaintenance(ctx); err != nil {
		t.Fatalf("RunSQLMaintenance() error = %v", err)
	}
	size, err := s.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size <= 0 {
		t.Errorf("Size() = %d, want > 0", size)
	}
}
