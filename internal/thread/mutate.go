package thread

import (
	"CommentThread/internal/models"
	"slices"
	"time"
)

// Patch is a shallow update. Nil fields are left alone.
type Patch struct {
	Content     *string
	ContentHTML *string
	Images      *[]string
	IsDeleted   *bool
	IsLiked     *bool
	LikesCount  *int
	UpdatedAt   *time.Time
}

func (p Patch) apply(c *models.Comment) {
	if p.Content != nil {
		c.Content = *p.Content
	}
	if p.ContentHTML != nil {
		c.ContentHTML = *p.ContentHTML
	}
	if p.Images != nil {
		c.Images = slices.Clone(*p.Images)
		if len(c.Images) == 0 {
			c.Images = nil
		}
	}
	if p.IsDeleted != nil {
		c.IsDeleted = *p.IsDeleted
	}
	if p.IsLiked != nil {
		c.IsLiked = *p.IsLiked
	}
	if p.LikesCount != nil {
		c.LikesCount = max(*p.LikesCount, 0)
	}
	if p.UpdatedAt != nil {
		at := *p.UpdatedAt
		c.UpdatedAt = &at
	}
}

// Insert adds c to the tree. A root goes to the front of the root list, a
// reply to the end of its parent's replies. The tree is returned unchanged
// with false when the parent is missing or the id is taken.
func Insert(t *Tree, c models.Comment) (*Tree, bool) {
	return insert(t, c, false)
}

func insert(t *Tree, c models.Comment, pending bool) (*Tree, bool) {
	if c.ID == "" || t.Has(c.ID) {
		return t, false
	}
	if !c.IsRoot() && !t.Has(c.ParentID) {
		return t, false
	}
	x := t.begin()
	e := &entry{comment: copyComment(c), pending: pending}
	if c.IsRoot() {
		e.comment.Depth = 0
		x.t.roots = slices.Insert(x.t.roots, 0, c.ID)
	} else {
		p := x.entry(c.ParentID)
		e.comment.Depth = p.comment.Depth + 1
		p.replies = append(p.replies, c.ID)
	}
	x.add(e)
	return x.t, true
}

// Update applies patch to the comment with the given id. Missing ids are a
// no-op.
func Update(t *Tree, id string, patch Patch) *Tree {
	return modify(t, id, patch.apply)
}

func modify(t *Tree, id string, fn func(c *models.Comment)) *Tree {
	if !t.Has(id) {
		return t
	}
	x := t.begin()
	fn(&x.entry(id).comment)
	return x.t
}

// SoftDelete flags a comment as deleted. Its content and replies stay.
func SoftDelete(t *Tree, id string) *Tree {
	deleted := true
	return Update(t, id, Patch{IsDeleted: &deleted})
}

// ToggleLike flips the viewer's like and moves the count with it. When
// explicit is set, the server's state overwrites the local one instead.
func ToggleLike(t *Tree, id string, explicit *models.LikeState) *Tree {
	c, ok := t.Get(id)
	if !ok {
		return t
	}
	liked, count := !c.IsLiked, c.LikesCount
	if explicit != nil {
		liked, count = explicit.IsLiked, explicit.LikesCount
	} else if liked {
		count++
	} else {
		count--
	}
	count = max(count, 0)
	return Update(t, id, Patch{IsLiked: &liked, LikesCount: &count})
}

// Remove drops a comment and everything under it.
func Remove(t *Tree, id string) *Tree {
	e, ok := t.nodes[id]
	if !ok {
		return t
	}
	x := t.begin()
	if pid, ok := t.Parent(id); ok {
		p := x.entry(pid)
		p.replies = slices.DeleteFunc(p.replies, func(r string) bool { return r == id })
	} else {
		x.t.roots = slices.DeleteFunc(x.t.roots, func(r string) bool { return r == id })
	}
	stack := []string{e.comment.ID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, t.nodes[cur].replies...)
		delete(x.t.nodes, cur)
	}
	return x.t
}

// Rekey replaces the comment stored under oldID with rec, keeping its place
// in the tree and its replies. If rec.ID is already present the old entry is
// dropped and the existing one takes rec's fields.
func Rekey(t *Tree, oldID string, rec models.Comment) *Tree {
	old, ok := t.nodes[oldID]
	if !ok || rec.ID == "" {
		return t
	}
	if rec.ID != oldID && t.Has(rec.ID) {
		return overwrite(Remove(t, oldID), rec.ID, rec)
	}
	x := t.begin()
	e := &entry{comment: copyComment(rec), replies: slices.Clone(old.replies)}
	e.comment.ParentID = old.comment.ParentID
	e.comment.Depth = old.comment.Depth
	if rec.ID != oldID {
		delete(x.t.nodes, oldID)
		if pid, ok := t.Parent(oldID); ok {
			p := x.entry(pid)
			p.replies[slices.Index(p.replies, oldID)] = rec.ID
		} else if i := slices.Index(x.t.roots, oldID); i >= 0 {
			x.t.roots[i] = rec.ID
		}
		for _, rid := range e.replies {
			x.entry(rid).comment.ParentID = rec.ID
		}
	}
	x.add(e)
	return x.t
}

// overwrite replaces the content fields of id with those of c, keeping the
// tree position, parent and depth.
func overwrite(t *Tree, id string, c models.Comment) *Tree {
	if !t.Has(id) {
		return t
	}
	x := t.begin()
	e := x.entry(id)
	cp := copyComment(c)
	cp.ID, cp.ParentID, cp.Depth = id, e.comment.ParentID, e.comment.Depth
	e.comment = cp
	e.pending = false
	return x.t
}

// insertSorted places a reply among its siblings oldest first, after any
// sibling with the same timestamp.
func (x *txn) insertSorted(parentID string, e *entry) {
	p := x.entry(parentID)
	e.comment.Depth = p.comment.Depth + 1
	i := len(p.replies)
	for i > 0 && x.t.nodes[p.replies[i-1]].comment.CreatedAt.After(e.comment.CreatedAt) {
		i--
	}
	p.replies = slices.Insert(p.replies, i, e.comment.ID)
	x.add(e)
}
