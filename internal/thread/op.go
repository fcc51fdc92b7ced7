package thread

import (
	"CommentThread/internal/models"
	"fmt"
	"slices"
	"time"
)

type Kind int

const (
	KindCreate Kind = iota
	KindReply
	KindEdit
	KindDelete
	KindLike
	KindLoad
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindReply:
		return "reply"
	case KindEdit:
		return "edit"
	case KindDelete:
		return "delete"
	case KindLike:
		return "like"
	case KindLoad:
		return "load comments"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Phase int

const (
	PhaseNew Phase = iota
	PhasePending
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Result carries what the backend confirmed for an operation.
type Result struct {
	Record *models.CommentRecord
	Like   *models.LikeState
}

// Op is one optimistic change. It moves from PhaseNew to PhasePending on
// Apply and then to exactly one of PhaseCommitted or PhaseRolledBack.
type Op struct {
	Kind     Kind
	TargetID string
	Phase    Phase

	insert models.Comment
	patch  Patch
	// undo restores only the fields Apply changed.
	undo func(c *models.Comment)
}

// NewInsertOp creates a create or reply operation for a comment carrying a
// temporary id.
func NewInsertOp(c models.Comment) *Op {
	kind := KindCreate
	if !c.IsRoot() {
		kind = KindReply
	}
	return &Op{Kind: kind, TargetID: c.ID, insert: copyComment(c)}
}

func NewEditOp(id, content string, images []string, at time.Time) *Op {
	imgs := slices.Clone(images)
	empty := ""
	return &Op{
		Kind:     KindEdit,
		TargetID: id,
		patch:    Patch{Content: &content, ContentHTML: &empty, Images: &imgs, UpdatedAt: &at},
	}
}

func NewDeleteOp(id string) *Op {
	return &Op{Kind: KindDelete, TargetID: id}
}

func NewLikeOp(id string) *Op {
	return &Op{Kind: KindLike, TargetID: id}
}

// Apply performs the local change.
func (o *Op) Apply(t *Tree) (*Tree, error) {
	if o.Phase != PhaseNew {
		return t, fmt.Errorf("%w: apply from %s", ErrInvalidTransition, o.Phase)
	}
	var nt *Tree
	switch o.Kind {
	case KindCreate, KindReply:
		var ok bool
		if nt, ok = insert(t, o.insert, true); !ok {
			return t, fmt.Errorf("insert %s under %q: %w", o.TargetID, o.insert.ParentID, ErrCommentNotFound)
		}
	default:
		prior, ok := t.Get(o.TargetID)
		if !ok {
			return t, fmt.Errorf("%s %s: %w", o.Kind, o.TargetID, ErrCommentNotFound)
		}
		switch o.Kind {
		case KindEdit:
			o.undo = restoreBody(prior)
			nt = Update(t, o.TargetID, o.patch)
		case KindDelete:
			wasDeleted := prior.IsDeleted
			o.undo = func(c *models.Comment) { c.IsDeleted = wasDeleted }
			nt = SoftDelete(t, o.TargetID)
		case KindLike:
			liked, count := prior.IsLiked, prior.LikesCount
			o.undo = func(c *models.Comment) { c.IsLiked, c.LikesCount = liked, count }
			nt = ToggleLike(t, o.TargetID, nil)
		default:
			return t, fmt.Errorf("%w: unknown kind %s", ErrInvalidTransition, o.Kind)
		}
	}
	o.Phase = PhasePending
	return nt, nil
}

// Commit reconciles the local change with what the server confirmed. A
// result missing the expected payload yields ErrMalformedResponse and leaves
// the op pending so the caller can roll it back.
func (o *Op) Commit(t *Tree, res Result) (*Tree, error) {
	if o.Phase != PhasePending {
		return t, fmt.Errorf("%w: commit from %s", ErrInvalidTransition, o.Phase)
	}
	var nt *Tree
	switch o.Kind {
	case KindCreate, KindReply:
		if res.Record == nil || res.Record.ID == "" {
			return t, fmt.Errorf("%s: missing comment record: %w", o.Kind, ErrMalformedResponse)
		}
		rec := res.Record.ToComment()
		if t.Has(o.TargetID) {
			nt = Rekey(t, o.TargetID, rec)
		} else if t.Has(rec.ID) {
			nt = overwrite(t, rec.ID, rec)
		} else {
			// The thread was reloaded while the call was in flight. A reply
			// whose parent is gone stays out of the tree.
			nt, _ = Insert(t, rec)
		}
		o.TargetID = rec.ID
	case KindEdit:
		if res.Record == nil || res.Record.ID != o.TargetID {
			return t, fmt.Errorf("edit %s: missing or mismatched record: %w", o.TargetID, ErrMalformedResponse)
		}
		r := res.Record
		imgs := slices.Clone(r.Images)
		p := Patch{Content: &r.Content, ContentHTML: &r.ContentHTML, Images: &imgs}
		if r.UpdatedAt != nil {
			p.UpdatedAt = r.UpdatedAt
		}
		nt = Update(t, o.TargetID, p)
	case KindDelete:
		nt = SoftDelete(t, o.TargetID)
	case KindLike:
		if res.Like == nil || res.Like.LikesCount < 0 {
			return t, fmt.Errorf("like %s: missing like state: %w", o.TargetID, ErrMalformedResponse)
		}
		nt = ToggleLike(t, o.TargetID, res.Like)
	default:
		return t, fmt.Errorf("%w: unknown kind %s", ErrInvalidTransition, o.Kind)
	}
	o.Phase = PhaseCommitted
	return nt, nil
}

// Rollback undoes only this op's change. Other nodes, and fields of the
// target this op did not touch, keep whatever happened to them meanwhile.
func (o *Op) Rollback(t *Tree) (*Tree, error) {
	if o.Phase != PhasePending {
		return t, fmt.Errorf("%w: rollback from %s", ErrInvalidTransition, o.Phase)
	}
	var nt *Tree
	switch o.Kind {
	case KindCreate, KindReply:
		nt = Remove(t, o.TargetID)
	default:
		nt = modify(t, o.TargetID, o.undo)
	}
	o.Phase = PhaseRolledBack
	return nt, nil
}

func restoreBody(prior models.Comment) func(c *models.Comment) {
	prior = copyComment(prior)
	return func(c *models.Comment) {
		c.Content, c.ContentHTML = prior.Content, prior.ContentHTML
		c.Images = slices.Clone(prior.Images)
		c.UpdatedAt = nil
		if prior.UpdatedAt != nil {
			at := *prior.UpdatedAt
			c.UpdatedAt = &at
		}
	}
}
