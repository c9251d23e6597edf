package messaging

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/errs"
)

// ThreadTraverser answers structural questions about reply threads. It only
// reads, so it takes no locks and may observe a snapshot concurrent with
// in-flight writes.
type ThreadTraverser struct {
	db *database.Store
}

// NewThreadTraverser creates a ThreadTraverser over db.
func NewThreadTraverser(db *database.Store) *ThreadTraverser {
	return &ThreadTraverser{db: db}
}

// threadNode is a message in traversal order with its distance from the
// traversal start.
type threadNode struct {
	msg   database.Message
	level int
}

// Root follows parent links from id until a parentless message is reached.
func (t *ThreadTraverser) Root(ctx context.Context, id string) (*database.Message, error) {
	return rootOf(ctx, t.db.Reader(), id)
}

func rootOf(ctx context.Context, q *database.Queries, id string) (*database.Message, error) {
	m, err := q.GetMessage(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to load message", err)
	}
	if m == nil {
		return nil, errs.NewNotFoundError("message", id)
	}

	visited := map[string]struct{}{m.ID: {}}
	for m.ParentID.Valid {
		parentID := m.ParentID.String
		if _, seen := visited[parentID]; seen {
			return nil, errs.NewCycleDetectedError(parentID)
		}
		p, err := q.GetMessage(ctx, parentID)
		if err != nil {
			return nil, errs.NewDatabaseError("failed to load parent message", err)
		}
		if p == nil {
			return nil, errs.NewDatabaseError(
				fmt.Sprintf("message %q references missing parent %q", m.ID, parentID), nil)
		}
		visited[p.ID] = struct{}{}
		m = p
	}
	return m, nil
}

// Subtree returns every descendant of id in depth-first pre-order, siblings
// ordered by creation time ascending. id itself is not included.
func (t *ThreadTraverser) Subtree(ctx context.Context, id string) ([]database.Message, error) {
	nodes, err := t.subtree(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]database.Message, len(nodes))
	for i, n := range nodes {
		out[i] = n.msg
	}
	return out, nil
}

func (t *ThreadTraverser) subtree(ctx context.Context, id string) ([]threadNode, error) {
	q := t.db.Reader()
	start, err := q.GetMessage(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to load message", err)
	}
	if start == nil {
		return nil, errs.NewNotFoundError("message", id)
	}

	descendants, err := q.ListDescendants(ctx, id)
	if err != nil {
		return nil, errs.NewDatabaseError("failed to load thread", err)
	}
	return orderSubtree(id, descendants)
}

// Participants returns the sorted, de-duplicated senders and receivers of
// the whole thread that contains id.
func (t *ThreadTraverser) Participants(ctx context.Context, id string) ([]string, error) {
	root, err := t.Root(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := t.subtree(ctx, root.ID)
	if err != nil {
		return nil, err
	}
	return participants(*root, nodes), nil
}

func participants(root database.Message, nodes []threadNode) []string {
	seen := map[string]struct{}{root.SenderID: {}, root.ReceiverID: {}}
	for _, n := range nodes {
		seen[n.msg.SenderID] = struct{}{}
		seen[n.msg.ReceiverID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// orderSubtree arranges descendants of startID into pre-order using an
// explicit stack. Reaching any node twice, including startID, means the
// stored parent links contain a cycle.
func orderSubtree(startID string, descendants []database.Message) ([]threadNode, error) {
	children := make(map[string][]database.Message, len(descendants))
	for _, m := range descendants {
		if m.ParentID.Valid {
			children[m.ParentID.String] = append(children[m.ParentID.String], m)
		}
	}
	for _, kids := range children {
		slices.SortFunc(kids, compareCreated)
	}

	visited := map[string]struct{}{startID: {}}
	out := make([]threadNode, 0, len(descendants))
	stack := pushReversed(nil, children[startID], 1)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[n.msg.ID]; seen {
			return nil, errs.NewCycleDetectedError(n.msg.ID)
		}
		visited[n.msg.ID] = struct{}{}
		out = append(out, n)
		stack = pushReversed(stack, children[n.msg.ID], n.level+1)
	}
	return out, nil
}

// pushReversed pushes kids so that the first kid is popped first.
func pushReversed(stack []threadNode, kids []database.Message, level int) []threadNode {
	for i := len(kids) - 1; i >= 0; i-- {
		stack = append(stack, threadNode{msg: kids[i], level: level})
	}
	return stack
}

// compareCreated orders by created_at, then insertion sequence.
func compareCreated(a, b database.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
