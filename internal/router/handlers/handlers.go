package handlers

import (
	"CommentThread/internal/models"
	"CommentThread/internal/router/middleware"
	"CommentThread/internal/service"
	"context"
	"encoding/json"
	"errors"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type CommentService interface {
	ListComments(ctx context.Context, postID, viewerID string, limit, offset int) (*models.CommentPage, error)
	CreateComment(ctx context.Context, postID, authorID string, req models.CreateCommentRequest) (*models.CommentRecord, error)
	UpdateComment(ctx context.Context, id, authorID string, req models.UpdateCommentRequest) (*models.CommentRecord, error)
	DeleteComment(ctx context.Context, id, authorID string) error
	ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error)
	GetThread(ctx context.Context, id, viewerID string) (*models.CommentNode, error)
	SearchComments(ctx context.Context, postID, query, viewerID string) ([]models.FlatCommentRow, error)
}

type CommentHandler struct {
	service CommentService
}

func NewCommentHandler(service CommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

func (h *CommentHandler) ListComments(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.service.ListComments(c.Request.Context(), c.Param("postId"), middleware.Viewer(c), limit, offset)
	if err != nil {
		writeError(c, log, err, "Failed to get comments")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *CommentHandler) CreateComment(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)
	log.Debug("Creating comment")
	req := &models.CreateCommentRequest{}
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		log.Warn("Failed to decode request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": "validation_error", "message": "Invalid request body"})
		return
	}

	rec, err := h.service.CreateComment(c.Request.Context(), c.Param("postId"), middleware.Viewer(c), *req)
	if err != nil {
		writeError(c, log, err, "Failed to create comment")
		return
	}
	log.Debug("Created comment", zap.String("id", rec.ID))
	c.JSON(http.StatusCreated, rec)
}

func (h *CommentHandler) UpdateComment(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)
	req := &models.UpdateCommentRequest{}
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		log.Warn("Failed to decode request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": "validation_error", "message": "Invalid request body"})
		return
	}

	rec, err := h.service.UpdateComment(c.Request.Context(), c.Param("id"), middleware.Viewer(c), *req)
	if err != nil {
		writeError(c, log, err, "Failed to update comment")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *CommentHandler) DeleteComment(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)
	id := c.Param("id")
	log.Debug("Deleting comment", zap.String("id", id))

	if err := h.service.DeleteComment(c.Request.Context(), id, middleware.Viewer(c)); err != nil {
		writeError(c, log, err, "Failed to delete comment")
		return
	}
	c.JSON(http.StatusOK, ginext.H{"success": true})
}

func (h *CommentHandler) ToggleLike(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)

	state, err := h.service.ToggleLike(c.Request.Context(), c.Param("id"), middleware.Viewer(c))
	if err != nil {
		writeError(c, log, err, "Failed to toggle like")
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *CommentHandler) GetThread(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)

	node, err := h.service.GetThread(c.Request.Context(), c.Param("id"), middleware.Viewer(c))
	if err != nil {
		writeError(c, log, err, "Failed to get comments")
		return
	}
	c.JSON(http.StatusOK, ginext.H{"comment": node})
}

func (h *CommentHandler) SearchComments(c *ginext.Context) {
	log := c.MustGet(middleware.LoggerKey).(*zap.Logger)
	query := c.Query("q")

	log.Debug("Searching for comments", zap.String("query", query))
	results, err := h.service.SearchComments(c.Request.Context(), c.Param("postId"), query, middleware.Viewer(c))
	if err != nil {
		writeError(c, log, err, "Failed to perform search")
		return
	}
	c.JSON(http.StatusOK, ginext.H{"comments": results})
}

// writeError maps service errors to status codes. Only validation messages
// are shown to the caller verbatim.
func writeError(c *ginext.Context, log *zap.Logger, err error, fallback string) {
	switch {
	case service.IsValidationError(err):
		log.Warn(fallback, zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": "validation_error", "message": validationMessage(err)})
	case service.IsNotFound(err):
		log.Warn(fallback, zap.Error(err))
		c.JSON(http.StatusNotFound, ginext.H{"error": "not_found", "message": "Comment not found"})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, ginext.H{"error": "unauthorized", "message": "Sign in to continue"})
	case service.IsForbidden(err):
		log.Warn(fallback, zap.Error(err))
		c.JSON(http.StatusForbidden, ginext.H{"error": "forbidden", "message": "You can only change your own comments"})
	default:
		log.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, ginext.H{"error": "internal_error", "message": fallback})
	}
}

var validationMessages = []struct {
	err error
	msg string
}{
	{service.ErrContentEmpty, "Comment cannot be empty"},
	{service.ErrTooManyImages, "Too many images attached"},
	{service.ErrDepthExceeded, "Maximum reply depth reached"},
	{service.ErrParentDeleted, "Cannot reply to a deleted comment"},
	{service.ErrWrongPost, "Parent comment belongs to another post"},
	{service.ErrDeleted, "Comment has been deleted"},
}

func validationMessage(err error) string {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return v.msg
		}
	}
	return "Invalid request"
}
