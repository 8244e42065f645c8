package services

import "errors"

// Error kinds returned by SiegeService. Every one of them leaves state
// untouched; callers match with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrCapacityExceeded = errors.New("role capacity exceeded")
	ErrNotRegistered    = errors.New("not registered")
	ErrDuplicateEvent   = errors.New("event already exists")
)
