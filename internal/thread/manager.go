package thread

import (
	"CommentThread/internal/models"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxDepth  = 3
	DefaultMaxImages = 4
	DefaultPageSize  = 20
	// MaxPageSize is the largest page the comments API serves.
	MaxPageSize = 100

	tempIDPrefix = "temp-"
)

// Backend is the remote side of a comment thread.
type Backend interface {
	FetchComments(ctx context.Context, postID string, limit, offset int) (*models.CommentPage, error)
	CreateComment(ctx context.Context, postID, content string, parentID *string, images []string) (*models.CommentRecord, error)
	UpdateComment(ctx context.Context, commentID, content string, images []string) (*models.CommentRecord, error)
	DeleteComment(ctx context.Context, commentID string) (bool, error)
	ToggleCommentLike(ctx context.Context, commentID string) (*models.LikeState, error)
}

type Options struct {
	PostID string
	// Viewer is the author stamped on optimistic comments.
	Viewer    models.CommentAuthor
	MaxDepth  int
	MaxImages int
	PageSize  int
	// MutationTimeout bounds every remote write. Zero leaves it to ctx.
	MutationTimeout time.Duration
	// OnChange runs after every state transition while the manager's lock is
	// held. It must not call back into the manager.
	OnChange func(*Tree)

	Now   func() time.Time
	NewID func() string
}

// Manager owns the comment thread of one post. All transitions on its state
// run under a mutex; remote calls run outside it.
type Manager struct {
	mu      sync.Mutex
	backend Backend
	opts    Options
	state   State
	pending map[string]int
	// gen changes on every refresh so late pages from before it are dropped.
	gen     int
	loading bool
	log     *zap.Logger
}

func NewManager(backend Backend, opts Options, log *zap.Logger) *Manager {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = DefaultMaxImages
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	opts.PageSize = min(opts.PageSize, MaxPageSize)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		backend: backend,
		opts:    opts,
		state:   NewState(opts.PageSize),
		pending: make(map[string]int),
		log:     log.Named("thread").With(zap.String("post_id", opts.PostID)),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Tree() *Tree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Tree
}

// IsPending reports whether a remote call for id is in flight.
func (m *Manager) IsPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[id] > 0 || m.state.Tree.IsPending(id)
}

// Create posts a new top-level comment.
func (m *Manager) Create(ctx context.Context, content string, images []string) (models.Comment, error) {
	return m.submit(ctx, "", content, images)
}

// Reply posts a reply to parentID. Replies to comments already at the
// maximum depth are rejected without calling the backend.
func (m *Manager) Reply(ctx context.Context, parentID, content string, images []string) (models.Comment, error) {
	if parentID == "" {
		return models.Comment{}, fmt.Errorf("reply: %w", ErrCommentNotFound)
	}
	return m.submit(ctx, parentID, content, images)
}

func (m *Manager) submit(ctx context.Context, parentID, content string, images []string) (models.Comment, error) {
	content, err := m.validateBody(content, images)
	if err != nil {
		return models.Comment{}, err
	}

	m.mu.Lock()
	if parentID != "" {
		parent, ok := m.state.Tree.Get(parentID)
		switch {
		case !ok:
			err = fmt.Errorf("reply to %s: %w", parentID, ErrCommentNotFound)
		case m.state.Tree.IsPending(parentID):
			err = fmt.Errorf("reply to %s: %w", parentID, ErrPending)
		case parent.IsDeleted:
			err = fmt.Errorf("reply to %s: %w", parentID, ErrDeleted)
		case parent.Depth >= m.opts.MaxDepth:
			err = fmt.Errorf("reply to %s at depth %d: %w", parentID, parent.Depth, ErrDepthExceeded)
		}
		if err != nil {
			m.mu.Unlock()
			m.log.Debug("Reply rejected", zap.String("parent_id", parentID), zap.Error(err))
			return models.Comment{}, err
		}
	}
	op := NewInsertOp(models.Comment{
		ID:        tempIDPrefix + m.opts.NewID(),
		PostID:    m.opts.PostID,
		ParentID:  parentID,
		Author:    m.opts.Viewer,
		Content:   content,
		Images:    slices.Clone(images),
		CreatedAt: m.opts.Now(),
	})
	if err := m.applyLocked(op); err != nil {
		m.mu.Unlock()
		return models.Comment{}, err
	}
	tempID := op.TargetID
	m.mu.Unlock()

	var pid *string
	if parentID != "" {
		pid = &parentID
	}
	res, callErr := m.call(ctx, func(ctx context.Context) (Result, error) {
		rec, err := m.backend.CreateComment(ctx, m.opts.PostID, content, pid, images)
		return Result{Record: rec}, err
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(tempID)
	if err := m.finishLocked(op, res, callErr); err != nil {
		return models.Comment{}, err
	}
	c, ok := m.state.Tree.Get(op.TargetID)
	if !ok {
		m.log.Warn("Confirmed comment has no parent in the loaded thread",
			zap.String("comment_id", op.TargetID),
			zap.String("parent_id", parentID))
		return res.Record.ToComment(), fmt.Errorf("%s %s: %w", op.Kind, op.TargetID, ErrNotShown)
	}
	return c, nil
}

// Edit replaces the content and images of one of the viewer's comments.
func (m *Manager) Edit(ctx context.Context, id, content string, images []string) (models.Comment, error) {
	content, err := m.validateBody(content, images)
	if err != nil {
		return models.Comment{}, err
	}
	op := NewEditOp(id, content, images, m.opts.Now())
	if err := m.begin(op); err != nil {
		return models.Comment{}, err
	}
	res, callErr := m.call(ctx, func(ctx context.Context) (Result, error) {
		rec, err := m.backend.UpdateComment(ctx, id, content, images)
		return Result{Record: rec}, err
	})
	return m.end(op, res, callErr)
}

// Delete soft-deletes a comment. Its replies stay visible.
func (m *Manager) Delete(ctx context.Context, id string) error {
	op := NewDeleteOp(id)
	if err := m.begin(op); err != nil {
		return err
	}
	res, callErr := m.call(ctx, func(ctx context.Context) (Result, error) {
		ok, err := m.backend.DeleteComment(ctx, id)
		if err == nil && !ok {
			err = fmt.Errorf("delete %s: backend reported no success: %w", id, ErrMalformedResponse)
		}
		return Result{}, err
	})
	_, err := m.end(op, res, callErr)
	return err
}

// ToggleLike flips the viewer's like on id. Repeated clicks while a toggle
// is in flight should be debounced by the caller.
func (m *Manager) ToggleLike(ctx context.Context, id string) (models.LikeState, error) {
	op := NewLikeOp(id)
	if err := m.begin(op); err != nil {
		return models.LikeState{}, err
	}
	res, callErr := m.call(ctx, func(ctx context.Context) (Result, error) {
		like, err := m.backend.ToggleCommentLike(ctx, id)
		return Result{Like: like}, err
	})
	c, err := m.end(op, res, callErr)
	if err != nil {
		return models.LikeState{}, err
	}
	return models.LikeState{IsLiked: c.IsLiked, LikesCount: c.LikesCount}, nil
}

// LoadMore fetches the next page of top-level comments and appends it. It
// does nothing when no more pages exist or a load is already running.
func (m *Manager) LoadMore(ctx context.Context) error {
	return m.load(ctx, false)
}

// Refresh drops the loaded thread and rebuilds it from the first page.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.load(ctx, true)
}

func (m *Manager) load(ctx context.Context, replace bool) error {
	m.mu.Lock()
	if replace {
		m.gen++
	} else if m.loading || !m.state.HasMore {
		m.mu.Unlock()
		return nil
	}
	m.loading = true
	gen, offset, limit := m.gen, m.state.Offset, m.state.PageSize
	if replace {
		offset = 0
	}
	m.mu.Unlock()

	page, err := m.backend.FetchComments(ctx, m.opts.PostID, limit, offset)
	if err == nil && page == nil {
		err = fmt.Errorf("fetch comments: empty page: %w", ErrMalformedResponse)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		m.log.Debug("Dropping stale comment page", zap.Int("offset", offset))
		return nil
	}
	m.loading = false
	if err != nil {
		m.log.Error("Failed to fetch comments", zap.Int("offset", offset), zap.Error(err))
		return newRemoteError(KindLoad, err)
	}
	next, rep := MergePage(m.state, page, replace)
	if len(rep.Orphans) > 0 || rep.Duplicates > 0 || rep.Invalid > 0 {
		m.log.Warn("Comment page had inconsistent rows",
			zap.Strings("orphans", rep.Orphans),
			zap.Int("duplicates", rep.Duplicates),
			zap.Int("invalid", rep.Invalid))
	}
	m.state = next
	m.log.Debug("Merged comment page",
		zap.Int("offset", offset),
		zap.Int("rows", len(page.Rows)),
		zap.Bool("has_more", next.HasMore))
	m.notify()
	return nil
}

func (m *Manager) validateBody(content string, images []string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(images) == 0 {
		return "", ErrEmptyContent
	}
	if len(images) > m.opts.MaxImages {
		return "", fmt.Errorf("%d images, at most %d allowed: %w", len(images), m.opts.MaxImages, ErrTooManyImages)
	}
	return content, nil
}

// begin checks the target of an edit, delete or like and applies it.
func (m *Manager) begin(op *Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.Tree.Get(op.TargetID)
	switch {
	case !ok:
		return fmt.Errorf("%s %s: %w", op.Kind, op.TargetID, ErrCommentNotFound)
	case m.state.Tree.IsPending(op.TargetID):
		return fmt.Errorf("%s %s: %w", op.Kind, op.TargetID, ErrPending)
	case c.IsDeleted && op.Kind != KindLike:
		return fmt.Errorf("%s %s: %w", op.Kind, op.TargetID, ErrDeleted)
	}
	return m.applyLocked(op)
}

func (m *Manager) end(op *Op, res Result, callErr error) (models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(op.TargetID)
	if err := m.finishLocked(op, res, callErr); err != nil {
		return models.Comment{}, err
	}
	c, _ := m.state.Tree.Get(op.TargetID)
	return c, nil
}

func (m *Manager) applyLocked(op *Op) error {
	t, err := op.Apply(m.state.Tree)
	if err != nil {
		return err
	}
	m.state.Tree = t
	m.pending[op.TargetID]++
	m.log.Debug("Applied optimistic change", zap.Stringer("action", op.Kind), zap.String("comment_id", op.TargetID))
	m.notify()
	return nil
}

// finishLocked commits op or, on any failure, rolls back just op.
func (m *Manager) finishLocked(op *Op, res Result, callErr error) error {
	if callErr == nil {
		t, err := op.Commit(m.state.Tree, res)
		if err == nil {
			m.state.Tree = t
			m.log.Debug("Committed change", zap.Stringer("action", op.Kind), zap.String("comment_id", op.TargetID))
			m.notify()
			return nil
		}
		callErr = err
	}
	t, err := op.Rollback(m.state.Tree)
	if err != nil {
		return err
	}
	m.state.Tree = t
	m.log.Warn("Rolled back change",
		zap.Stringer("action", op.Kind),
		zap.String("comment_id", op.TargetID),
		zap.Error(callErr))
	m.notify()
	return newRemoteError(op.Kind, callErr)
}

func (m *Manager) release(id string) {
	if m.pending[id] <= 1 {
		delete(m.pending, id)
		return
	}
	m.pending[id]--
}

func (m *Manager) call(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	if m.opts.MutationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.MutationTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (m *Manager) notify() {
	if m.opts.OnChange != nil {
		m.opts.OnChange(m.state.Tree)
	}
}
