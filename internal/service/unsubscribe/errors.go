package unsubscribe

import "errors"

// Sentinel errors for the unsubscribe service layer.
var (
	// ErrNotFound means no candidate matched the email exactly.
	ErrNotFound = errors.New("no contact with this email")

	// ErrUpstreamUnavailable means the contact search itself failed. It is
	// independent of the address and wraps the typed mautic error.
	ErrUpstreamUnavailable = errors.New("mautic search unavailable")
)
