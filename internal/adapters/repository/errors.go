package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("match not found")
	ErrInvalidMatch = errors.New("invalid match")
	ErrMigrate      = errors.New("migrate store")
)
