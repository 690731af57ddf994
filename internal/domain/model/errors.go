package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidTristate = errors.New("invalid tristate value")
	ErrNegativeCount   = errors.New("negative count")
)
