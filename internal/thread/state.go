package thread

import (
	"CommentThread/internal/models"
	"slices"
)

// State is everything one post's comment view owns: the tree and the cursor
// for loading further top-level comments.
type State struct {
	Tree          *Tree
	Offset        int
	PageSize      int
	HasMore       bool
	TotalCount    int
	TopLevelCount int
	// Loaded counts top-level comments that came from the server.
	Loaded int
}

func NewState(pageSize int) State {
	return State{Tree: NewTree(), PageSize: pageSize, HasMore: true}
}

// MergePage folds a fetched page into s. With replace set the accumulated
// tree is discarded first. Otherwise new roots are appended after the ones
// already shown, ids already present are skipped, and replies are merged
// under parents loaded earlier.
func MergePage(s State, page *models.CommentPage, replace bool) (State, Report) {
	incoming, rep := Build(page.Rows)
	if replace {
		s.Tree = NewTree()
		s.Offset = 0
		s.Loaded = 0
	}

	x := s.Tree.begin()
	for _, id := range incoming.roots {
		x.merge(incoming, id)
	}

	fetched := 0
	for _, r := range page.Rows {
		if r.ParentID == nil {
			fetched++
		}
	}
	s.Tree = x.t
	s.Offset += fetched
	s.Loaded += fetched
	s.HasMore = page.Pagination.HasMore && fetched >= s.PageSize
	s.TotalCount = page.Pagination.TotalCount
	s.TopLevelCount = page.Pagination.TopLevelCount
	return s, rep
}

func (x *txn) merge(src *Tree, id string) {
	type item struct {
		id     string
		parent string
	}
	stack := []item{{id: id}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		se := src.nodes[it.id]
		if !x.t.Has(it.id) {
			e := &entry{comment: copyComment(se.comment)}
			parent := it.parent
			if parent == "" && se.comment.ParentID != "" && x.t.Has(se.comment.ParentID) {
				// An orphan from this page whose parent was loaded earlier.
				parent = se.comment.ParentID
			}
			if parent == "" {
				x.t.roots = append(x.t.roots, it.id)
				x.add(e)
			} else {
				x.insertSorted(parent, e)
			}
		}
		children := slices.Clone(se.replies)
		slices.Reverse(children)
		for _, rid := range children {
			stack = append(stack, item{id: rid, parent: it.id})
		}
	}
}
