package budget

import "errors"

// Sentinel errors for the budget workflow
var (
	ErrInvalidStateTransition = errors.New("invalid budget period state transition")
	ErrTokenNotFound          = errors.New("approval token not found")
	ErrConflictingResponse    = errors.New("approval response conflicts with an earlier response")
	ErrInvalidArgument        = errors.New("invalid argument")
)
