package model

import "errors"

// Error kinds shared across the engine. Wrap them with %w and test with
// errors.Is.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidPeriodRange   = errors.New("invalid period range")
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrDuplicateArchive     = errors.New("duplicate archive snapshot")
	ErrConfigurationMissing = errors.New("period configuration missing")
)
