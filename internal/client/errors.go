package client

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrDecode = errors.New("failed to decode response")

// APIError is a non-2xx answer from the comments API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("comments api: status %d", e.Status)
	}
	return fmt.Sprintf("comments api: status %d: %s: %s", e.Status, e.Kind, e.Message)
}

// UserMessage is the server's explanation for a rejected request. Server
// failures have none.
func (e *APIError) UserMessage() string {
	if e.Status >= http.StatusInternalServerError {
		return ""
	}
	return e.Message
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
