package qart

import "errors"

// Common errors
var (
	ErrNotFound = errors.New("artifact not found")
	ErrTooLarge = errors.New("artifacts exceed the size limit")
)
