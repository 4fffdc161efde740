package terminal

import (
	"errors"

	"Terminal/internal/learner"
)

var (
	// ErrInvalidInput rejects a request before anything is processed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means there is no data or batch for the requested date and level.
	ErrNotFound = errors.New("not found")
	// ErrNotReady means outcomes for the date are not complete yet. Retry later.
	ErrNotReady = learner.ErrNotReady
)
