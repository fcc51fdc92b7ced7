package thread

import (
	"CommentThread/internal/models"
	"slices"
)

// Report describes data-quality problems found while building a tree.
type Report struct {
	// Orphans are replies whose parent is not in the batch (or that sat on a
	// parent cycle); they are shown at root level.
	Orphans    []string
	Duplicates int
	Invalid    int
}

// Normalize turns flat rows into nested comment nodes: roots newest first,
// replies oldest first.
func Normalize(rows []models.FlatCommentRow) []*models.CommentNode {
	t, _ := Build(rows)
	return t.Nodes()
}

// Build links flat rows into a tree. Rows may arrive in any order.
func Build(rows []models.FlatCommentRow) (*Tree, Report) {
	var rep Report
	t := NewTree()
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			rep.Invalid++
			continue
		}
		if t.Has(r.ID) {
			rep.Duplicates++
			continue
		}
		t.nodes[r.ID] = &entry{comment: copyComment(r.ToComment())}
		order = append(order, r.ID)
	}

	isOrphan := make(map[string]bool)
	for _, id := range order {
		e := t.nodes[id]
		pid := e.comment.ParentID
		if pid == "" {
			t.roots = append(t.roots, id)
			continue
		}
		if p, ok := t.nodes[pid]; ok && pid != id {
			p.replies = append(p.replies, id)
			continue
		}
		isOrphan[id] = true
		t.roots = append(t.roots, id)
	}

	// Anything not reachable from a root hangs off a parent cycle. Cut the
	// cycle at its first member in input order.
	reached := make(map[string]bool, len(order))
	for _, id := range t.roots {
		t.mark(id, reached)
	}
	for _, id := range order {
		if reached[id] {
			continue
		}
		e := t.nodes[id]
		p := t.nodes[e.comment.ParentID]
		p.replies = slices.DeleteFunc(p.replies, func(r string) bool { return r == id })
		t.roots = append(t.roots, id)
		isOrphan[id] = true
		t.mark(id, reached)
	}
	for _, id := range order {
		if isOrphan[id] {
			rep.Orphans = append(rep.Orphans, id)
		}
	}

	for _, id := range t.roots {
		e := t.nodes[id]
		switch {
		case e.comment.ParentID == "":
			e.comment.Depth = 0
		case e.comment.Depth < 0:
			e.comment.Depth = 0
		}
		t.assignDepths(id)
	}
	t.sort()
	return t, rep
}

func (t *Tree) mark(id string, reached map[string]bool) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		stack = append(stack, t.nodes[cur].replies...)
	}
}

// assignDepths sets every descendant of id to its parent's depth plus one.
// Only safe on entries owned by the caller.
func (t *Tree) assignDepths(id string) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		for _, rid := range cur.replies {
			t.nodes[rid].comment.Depth = cur.comment.Depth + 1
			stack = append(stack, rid)
		}
	}
}

// sort orders roots newest first and every reply list oldest first. Ties keep
// their input order.
func (t *Tree) sort() {
	slices.SortStableFunc(t.roots, func(a, b string) int {
		return t.nodes[b].comment.CreatedAt.Compare(t.nodes[a].comment.CreatedAt)
	})
	for _, e := range t.nodes {
		slices.SortStableFunc(e.replies, func(a, b string) int {
			return t.nodes[a].comment.CreatedAt.Compare(t.nodes[b].comment.CreatedAt)
		})
	}
}
