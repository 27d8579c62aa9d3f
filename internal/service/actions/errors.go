package actions

import "errors"

// Sentinel errors for the audit query layer.
var (
	ErrInvalidLimit  = errors.New("limit must be between 1 and 500")
	ErrInvalidOffset = errors.New("offset must not be negative")
	ErrInvalidResult = errors.New("unknown result")
)
