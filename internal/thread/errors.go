package thread

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every local rejection made before a
	// remote call is issued.
	ErrValidation = errors.New("validation rejected")

	ErrEmptyContent  = fmt.Errorf("%w: comment content is required", ErrValidation)
	ErrTooManyImages = fmt.Errorf("%w: too many images", ErrValidation)
	ErrDepthExceeded = fmt.Errorf("%w: maximum reply depth reached", ErrValidation)
	ErrDeleted       = fmt.Errorf("%w: comment is deleted", ErrValidation)

	// ErrPending is returned for actions that target a comment the server
	// has not confirmed yet.
	ErrPending = fmt.Errorf("%w: comment is still being posted", ErrValidation)

	ErrCommentNotFound = errors.New("comment not found")

	// ErrNotShown is returned when the server accepted a comment whose parent
	// is no longer in the loaded thread, so it cannot be placed.
	ErrNotShown = errors.New("comment saved but not in the loaded thread")

	ErrRemoteCall        = errors.New("remote call failed")
	ErrMalformedResponse = errors.New("malformed response")

	ErrInvalidTransition = errors.New("invalid operation transition")
)

const genericRemoteMessage = "Something went wrong. Please try again."

// RemoteError reports a failed backend call whose optimistic change has been
// rolled back.
type RemoteError struct {
	Action  Kind
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemoteCall, e.Err}
}

func newRemoteError(action Kind, err error) *RemoteError {
	msg := genericRemoteMessage
	var m interface{ UserMessage() string }
	if errors.As(err, &m) && m.UserMessage() != "" {
		msg = m.UserMessage()
	}
	return &RemoteError{Action: action, Message: msg, Err: err}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsRemote(err error) bool {
	return errors.Is(err, ErrRemoteCall)
}

// UserMessage returns text suitable for showing to the viewer.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	if IsValidation(err) {
		return err.Error()
	}
	return genericRemoteMessage
}
