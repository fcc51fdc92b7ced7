package service

import (
	"CommentThread/internal/models"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is the parent of every validation failure.
	ErrInvalidRequest = errors.New("invalid request")

	ErrContentEmpty  = fmt.Errorf("%w: comment content is required", ErrInvalidRequest)
	ErrTooManyImages = fmt.Errorf("%w: too many images", ErrInvalidRequest)
	ErrDepthExceeded = fmt.Errorf("%w: maximum reply depth reached", ErrInvalidRequest)
	ErrParentDeleted = fmt.Errorf("%w: cannot reply to a deleted comment", ErrInvalidRequest)
	ErrWrongPost     = fmt.Errorf("%w: parent comment belongs to another post", ErrInvalidRequest)
	ErrDeleted       = fmt.Errorf("%w: comment is deleted", ErrInvalidRequest)

	ErrCommentNotFound = fmt.Errorf("comment %w", models.ErrNotFound)
	ErrParentNotFound  = fmt.Errorf("parent comment %w", models.ErrNotFound)

	ErrForbidden       = errors.New("not allowed to change this comment")
	ErrUnauthenticated = errors.New("viewer is required")
)

func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
