package domain

import "errors"

var (
	ErrMethodNotFound    = errors.New("method_not_found")
	ErrDuplicateMethod   = errors.New("duplicate_method")
	ErrUnsupportedMethod = errors.New("unsupported_method")
	// ErrInvalidDisplayName rejects an empty or overlong display name.
	ErrInvalidDisplayName = errors.New("invalid_display_name")
)
