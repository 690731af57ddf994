package app

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrBackpressure  = errors.New("backpressure")
	ErrEmptyBatch    = errors.New("batch has no observations")
	ErrMatchMismatch = errors.New("observation belongs to another match")
)
