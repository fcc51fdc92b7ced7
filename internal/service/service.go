package service

import (
	"CommentThread/internal/models"
	"CommentThread/internal/render"
	"CommentThread/internal/thread"
	"context"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

const (
	defaultLimit = 20
	maxLimit     = thread.MaxPageSize
)

type Repository interface {
	Parent(ctx context.Context, id string) (*models.ParentRef, error)
	Create(ctx context.Context, c models.FlatCommentRow) error
	GetByID(ctx context.Context, id, viewerID string) (*models.FlatCommentRow, error)
	GetSubtree(ctx context.Context, path, viewerID string) ([]models.FlatCommentRow, error)
	ListPage(ctx context.Context, postID, viewerID string, limit, offset int) ([]models.FlatCommentRow, error)
	Count(ctx context.Context, postID string) (topLevel, total int, err error)
	Update(ctx context.Context, id, content string, images []string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ToggleLike(ctx context.Context, id, userID string) (models.LikeState, error)
	SearchByText(ctx context.Context, postID, query, viewerID string) ([]models.FlatCommentRow, error)
}

type Options struct {
	MaxDepth  int
	MaxImages int
}

type Service struct {
	repo Repository
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, opts Options, log *zap.Logger) *Service {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = thread.DefaultMaxDepth
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = thread.DefaultMaxImages
	}
	return &Service{
		repo: repo,
		opts: opts,
		log:  log.Named("service"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ListComments returns one page of top-level comments, newest first, each
// with its whole reply tree as flat rows.
func (s *Service) ListComments(ctx context.Context, postID, viewerID string, limit, offset int) (*models.CommentPage, error) {
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	s.log.Debug("Getting paginated comments", zap.String("post_id", postID), zap.Int("limit", limit), zap.Int("offset", offset))
	topLevel, total, err := s.repo.Count(ctx, postID)
	if err != nil {
		s.log.Error("Failed to count comments", zap.Error(err))
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}
	rows, err := s.repo.ListPage(ctx, postID, viewerID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get comment page", zap.Error(err))
		return nil, fmt.Errorf("failed to get comment page: %w", err)
	}

	roots := 0
	for i := range rows {
		if rows[i].ParentID == nil {
			roots++
		}
		present(&rows[i])
	}
	if rows == nil {
		rows = []models.FlatCommentRow{}
	}
	return &models.CommentPage{
		Rows: rows,
		Pagination: models.Pagination{
			TotalCount:    total,
			TopLevelCount: topLevel,
			HasMore:       offset+roots < topLevel,
			Offset:        offset,
		},
	}, nil
}

func (s *Service) CreateComment(ctx context.Context, postID, authorID string, req models.CreateCommentRequest) (*models.CommentRecord, error) {
	if authorID == "" {
		return nil, ErrUnauthenticated
	}
	content, err := s.validateBody(req.Content, req.Images)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	depth := 0
	path := ""
	if req.ParentID != nil {
		parent, err := s.repo.Parent(ctx, *req.ParentID)
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrParentNotFound, *req.ParentID)
			}
			return nil, fmt.Errorf("failed to load parent comment: %w", err)
		}
		switch {
		case parent.PostID != postID:
			return nil, ErrWrongPost
		case parent.IsDeleted:
			return nil, ErrParentDeleted
		case parent.Depth >= s.opts.MaxDepth:
			s.log.Debug("Reply beyond max depth", zap.String("parent_id", parent.ID), zap.Int("depth", parent.Depth))
			return nil, ErrDepthExceeded
		}
		depth = parent.Depth + 1
		path = parent.Path
	}

	comment := models.FlatCommentRow{
		ID:        id,
		PostID:    postID,
		ParentID:  req.ParentID,
		Author:    models.CommentAuthor{ID: authorID},
		Content:   content,
		Images:    req.Images,
		Depth:     &depth,
		CreatedAt: s.now(),
		Path:      path + id + "/",
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		s.log.Error("Failed to create comment", zap.Error(err))
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	s.log.Debug("Created comment", zap.String("id", id), zap.Int("depth", depth))
	return s.load(ctx, id, authorID)
}

func (s *Service) UpdateComment(ctx context.Context, id, authorID string, req models.UpdateCommentRequest) (*models.CommentRecord, error) {
	content, err := s.validateBody(req.Content, req.Images)
	if err != nil {
		return nil, err
	}
	current, err := s.owned(ctx, id, authorID)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted {
		return nil, ErrDeleted
	}
	if err := s.repo.Update(ctx, id, content, req.Images, s.now()); err != nil {
		s.log.Error("Failed to update comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return s.load(ctx, id, authorID)
}

// DeleteComment soft-deletes a comment; replies stay in place. Deleting an
// already deleted comment succeeds.
func (s *Service) DeleteComment(ctx context.Context, id, authorID string) error {
	s.log.Debug("Deleting comment", zap.String("id", id))
	current, err := s.owned(ctx, id, authorID)
	if err != nil {
		return err
	}
	if current.IsDeleted {
		return nil
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		s.log.Error("Failed to delete comment", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

func (s *Service) ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	state, err := s.repo.ToggleLike(ctx, id, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCommentNotFound, id)
		}
		s.log.Error("Failed to toggle like", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to toggle like: %w", err)
	}
	return &state, nil
}

// GetThread returns the comment id with all of its replies nested beneath it.
func (s *Service) GetThread(ctx context.Context, id, viewerID string) (*models.CommentNode, error) {
	s.log.Debug("Getting comments tree starting from id", zap.String("id", id))

	root, err := s.repo.GetByID(ctx, id, viewerID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCommentNotFound, id)
		}
		s.log.Error("Failed to get root comment", zap.Error(err))
		return nil, fmt.Errorf("failed to get root comment: %w", err)
	}

	rows, err := s.repo.GetSubtree(ctx, root.Path, viewerID)
	if err != nil {
		s.log.Error("Failed to get children", zap.Error(err))
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	s.log.Debug("Got all comments for the subtree", zap.Int("count", len(rows)))

	for i := range rows {
		present(&rows[i])
	}
	for _, n := range thread.Normalize(rows) {
		if n.ID == id {
			return n, nil
		}
	}
	present(root)
	return thread.Normalize([]models.FlatCommentRow{*root})[0], nil
}

func (s *Service) SearchComments(ctx context.Context, postID, query, viewerID string) ([]models.FlatCommentRow, error) {
	s.log.Debug("Searching for comments", zap.String("query", query))
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 3 {
		return []models.FlatCommentRow{}, nil
	}
	rows, err := s.repo.SearchByText(ctx, postID, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to search comments: %w", err)
	}
	for i := range rows {
		present(&rows[i])
	}
	if rows == nil {
		rows = []models.FlatCommentRow{}
	}
	return rows, nil
}

func (s *Service) validateBody(content string, images []string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(images) == 0 {
		return "", ErrContentEmpty
	}
	if len(images) > s.opts.MaxImages {
		return "", ErrTooManyImages
	}
	return content, nil
}

func (s *Service) owned(ctx context.Context, id, authorID string) (*models.FlatCommentRow, error) {
	if authorID == "" {
		return nil, ErrUnauthenticated
	}
	c, err := s.repo.GetByID(ctx, id, authorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCommentNotFound, id)
		}
		s.log.Error("Failed to load comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if c.Author.ID != authorID {
		s.log.Warn("Comment change by non-author", zap.String("id", id), zap.String("user_id", authorID))
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *Service) load(ctx context.Context, id, viewerID string) (*models.CommentRecord, error) {
	c, err := s.repo.GetByID(ctx, id, viewerID)
	if err != nil {
		s.log.Error("Failed to reload comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to reload comment: %w", err)
	}
	present(c)
	return c, nil
}

// present prepares a stored row for clients: deleted comments lose their
// body, live ones get rendered HTML.
func present(c *models.FlatCommentRow) {
	if c.IsDeleted {
		c.Content = ""
		c.ContentHTML = ""
		c.Images = []string{}
		return
	}
	c.ContentHTML = render.Markdown(c.Content)
	if c.Images == nil {
		c.Images = []string{}
	}
}
