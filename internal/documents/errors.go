package documents

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConditionFailed   = errors.New("condition failed")
	ErrForbidden         = errors.New("forbidden")
)
