// Package thread keeps the client-side state of one post's comment thread:
// an arena tree of comments, pure mutations over it, optimistic operations
// that can be committed or rolled back, and page merging.
package thread

import (
	"CommentThread/internal/models"
	"reflect"
	"slices"
)

type entry struct {
	comment models.Comment
	replies []string
	pending bool
}

// Tree is an immutable arena of comments keyed by id. Parent and child links
// are ids, so a tree can be shared freely and kept as a rollback snapshot.
type Tree struct {
	nodes map[string]*entry
	roots []string
}

func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*entry)}
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

func (t *Tree) Get(id string) (models.Comment, bool) {
	e, ok := t.nodes[id]
	if !ok {
		return models.Comment{}, false
	}
	return copyComment(e.comment), true
}

// IsPending reports whether id is an optimistic insert not yet confirmed.
func (t *Tree) IsPending(id string) bool {
	e, ok := t.nodes[id]
	return ok && e.pending
}

func (t *Tree) Roots() []string {
	return slices.Clone(t.roots)
}

func (t *Tree) Replies(id string) []string {
	e, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(e.replies)
}

// Parent returns the id of the node id hangs under, if any. A reply whose
// parent is not loaded sits at root level and has no parent in the tree.
func (t *Tree) Parent(id string) (string, bool) {
	e, ok := t.nodes[id]
	if !ok || e.comment.ParentID == "" {
		return "", false
	}
	p, ok := t.nodes[e.comment.ParentID]
	if !ok || !slices.Contains(p.replies, id) {
		return "", false
	}
	return e.comment.ParentID, true
}

// Walk visits comments depth first in display order and stops when fn
// returns false.
func (t *Tree) Walk(fn func(c models.Comment) bool) {
	stack := make([]string, 0, len(t.roots))
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, t.roots[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := t.nodes[id]
		if !fn(copyComment(e.comment)) {
			return
		}
		for i := len(e.replies) - 1; i >= 0; i-- {
			stack = append(stack, e.replies[i])
		}
	}
}

// Nodes renders the tree as nested comment nodes.
func (t *Tree) Nodes() []*models.CommentNode {
	out := make([]*models.CommentNode, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.node(id))
	}
	return out
}

func (t *Tree) node(id string) *models.CommentNode {
	e := t.nodes[id]
	c := e.comment
	n := &models.CommentNode{
		ID:          c.ID,
		PostID:      c.PostID,
		Author:      c.Author,
		Content:     c.Content,
		ContentHTML: c.ContentHTML,
		Images:      slices.Clone(c.Images),
		Depth:       c.Depth,
		LikesCount:  c.LikesCount,
		IsLiked:     c.IsLiked,
		IsDeleted:   c.IsDeleted,
		Pending:     e.pending,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Replies:     make([]*models.CommentNode, 0, len(e.replies)),
	}
	if c.ParentID != "" {
		pid := c.ParentID
		n.ParentID = &pid
	}
	if n.Images == nil {
		n.Images = []string{}
	}
	for _, rid := range e.replies {
		n.Replies = append(n.Replies, t.node(rid))
	}
	return n
}

// Equal reports whether both trees hold the same comments in the same shape.
func (t *Tree) Equal(o *Tree) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || len(t.nodes) != len(o.nodes) || !slices.Equal(t.roots, o.roots) {
		return false
	}
	for id, a := range t.nodes {
		b, ok := o.nodes[id]
		if !ok {
			return false
		}
		if a == b {
			continue
		}
		if a.pending != b.pending || !slices.Equal(a.replies, b.replies) || !reflect.DeepEqual(a.comment, b.comment) {
			return false
		}
	}
	return true
}

// txn is a copy-on-write view of a tree. Entries are copied the first time
// they are written so the source tree is never touched.
type txn struct {
	t     *Tree
	owned map[string]bool
}

func (t *Tree) begin() *txn {
	nodes := make(map[string]*entry, len(t.nodes)+1)
	for id, e := range t.nodes {
		nodes[id] = e
	}
	return &txn{
		t:     &Tree{nodes: nodes, roots: slices.Clone(t.roots)},
		owned: make(map[string]bool),
	}
}

func (x *txn) entry(id string) *entry {
	e, ok := x.t.nodes[id]
	if !ok {
		return nil
	}
	if x.owned[id] {
		return e
	}
	cp := &entry{
		comment: copyComment(e.comment),
		replies: slices.Clone(e.replies),
		pending: e.pending,
	}
	x.t.nodes[id] = cp
	x.owned[id] = true
	return cp
}

func (x *txn) add(e *entry) {
	x.t.nodes[e.comment.ID] = e
	x.owned[e.comment.ID] = true
}

func copyComment(c models.Comment) models.Comment {
	if len(c.Images) == 0 {
		c.Images = nil
	} else {
		c.Images = slices.Clone(c.Images)
	}
	if c.UpdatedAt != nil {
		at := *c.UpdatedAt
		c.UpdatedAt = &at
	}
	return c
}
