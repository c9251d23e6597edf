package messaging_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/threadbox/internal/errs"
	"github.com/edgard/threadbox/internal/messaging"
)

func collectUnread(t *testing.T, e *env, user string) []string {
	t.Helper()
	var ids []string
	for m, err := range e.svc.ListUnread(context.Background(), user) {
		if err != nil {
			t.Fatalf("ListUnread() error = %v", err)
		}
		if m.Read {
			t.Errorf("ListUnread() yielded read message %s", m.ID)
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func TestListUnreadNewestFirstAcrossPages(t *testing.T) {
	t.Parallel()
	e := newEnv(t, withPageSize(2))

	var sent []messaging.MessageView
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sent = append(sent, e.send(t, e.alice, e.bob, content, ""))
	}
	e.send(t, e.bob, e.alice, "to alice", "")

	want := []string{sent[4].ID, sent[3].ID, sent[2].ID, sent[1].ID, sent[0].ID}
	if diff := cmp.Diff(want, collectUnread(t, e, e.bob)); diff != "" {
		t.Errorf("unread mismatch (-want +got):\n%s", diff)
	}

	// Ranging again starts from the top.
	if diff := cmp.Diff(want, collectUnread(t, e, e.bob)); diff != "" {
		t.Errorf("second range mismatch (-want +got):\n%s", diff)
	}

	// Early exit stops the sequence.
	var taken int
	for range e.svc.ListUnread(context.Background(), e.bob) {
		taken++
		if taken == 3 {
			break
		}
	}
	if taken != 3 {
		t.Errorf("took %d messages, want 3", taken)
	}
}

func TestUnreadExcludesReadAndMarkAllRead(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	m1 := e.send(t, e.alice, e.bob, "one", "")
	m2 := e.send(t, e.carol, e.bob, "two", "")
	m3 := e.send(t, e.alice, e.bob, "three", m1.ID)
	mine := e.send(t, e.bob, e.alice, "bob's own", "")

	if err := e.svc.MarkRead(ctx, m2.ID, e.bob); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if diff := cmp.Diff([]string{m3.ID, m1.ID}, collectUnread(t, e, e.bob)); diff != "" {
		t.Errorf("unread mismatch (-want +got):\n%s", diff)
	}

	from, err := e.svc.UnreadFrom(ctx, e.bob, e.alice)
	if err != nil {
		t.Fatalf("UnreadFrom() error = %v", err)
	}
	if len(from) != 2 {
		t.Errorf("UnreadFrom() = %d messages, want 2", len(from))
	}

	// ids of other users' messages are ignored.
	n, err := e.svc.MarkAllRead(ctx, e.bob, m1.ID, mine.ID)
	if err != nil {
		t.Fatalf("MarkAllRead(ids) error = %v", err)
	}
	if n != 1 {
		t.Errorf("MarkAllRead(ids) = %d, want 1", n)
	}

	n, err = e.svc.MarkAllRead(ctx, e.bob)
	if err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	if n != 1 {
		t.Errorf("MarkAllRead() = %d, want 1", n)
	}
	count, err := e.svc.UnreadCount(ctx, e.bob)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("UnreadCount() = %d, want 0", count)
	}
	if n, _ := e.svc.MarkAllRead(ctx, e.bob); n != 0 {
		t.Errorf("repeated MarkAllRead() = %d, want 0", n)
	}
	if count, _ := e.svc.UnreadCount(ctx, e.alice); count != 1 {
		t.Errorf("alice UnreadCount() = %d, want 1", count)
	}
}

func TestUnreadRequiresUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	for _, err := range e.svc.ListUnread(ctx, "") {
		if !errs.IsValidation(err) {
			t.Errorf("ListUnread(\"\") error = %v, want ValidationError", err)
		}
	}
	if _, err := e.svc.UnreadCount(ctx, ""); !errs.IsValidation(err) {
		t.Errorf("UnreadCount(\"\") error = %v, want ValidationError", err)
	}
	if _, err := e.svc.MarkAllRead(ctx, ""); !errs.IsValidation(err) {
		t.Errorf("MarkAllRead(\"\") error = %v, want ValidationError", err)
	}
}

func TestMarkNotificationsRead(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.send(t, e.alice, e.bob, "one", "")
	e.send(t, e.carol, e.bob, "two", "")

	n, err := e.svc.MarkNotificationsRead(ctx, e.bob)
	if err != nil {
		t.Fatalf("MarkNotificationsRead() error = %v", err)
	}
	if n != 2 {
		t.Errorf("MarkNotificationsRead() = %d, want 2", n)
	}
	unread, _ := e.svc.Notifications(ctx, e.bob, true)
	if len(unread) != 0 {
		t.Errorf("unread notifications = %d, want 0", len(unread))
	}
	all, _ := e.svc.Notifications(ctx, e.bob, false)
	if len(all) != 2 {
		t.Errorf("all notifications = %d, want 2", len(all))
	}
}
