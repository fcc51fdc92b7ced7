package models

import "errors"

// ErrNotFound is returned by storage when a comment does not exist.
var ErrNotFound = errors.New("not found")
