package mautic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// TransportError means the request never produced an HTTP response:
// connection failure, DNS failure, or a timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("mautic %s: transport: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Kind classifies the failure as "timeout", "refused", "dns" or "other".
func (e *TransportError) Kind() string {
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(e.Err, &dnsErr):
		return "dns"
	case errors.Is(e.Err, syscall.ECONNREFUSED):
		return "refused"
	case errors.As(e.Err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "other"
	}
}

// HTTPStatusError means Mautic answered with a status the call does not accept.
// Body is truncated and may contain PII; log it through the redacting logger only.
type HTTPStatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mautic %s: unexpected status %d", e.Op, e.Status)
}

// DecodeError means a 2xx body could not be decoded into the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("mautic %s: decode: %v", e.Op, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0 if there is none.
func StatusOf(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
