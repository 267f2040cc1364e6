package models

import "errors"

var (
	ErrValidation      = errors.New("invalid input")
	ErrUnauthenticated = errors.New("authentication required")
	// ErrDenied covers both a missing post and a post owned by someone else.
	ErrDenied      = errors.New("post not found or you don't have permission")
	ErrConflict    = errors.New("conflict, please retry")
	ErrUnavailable = errors.New("feature not configured")
)
