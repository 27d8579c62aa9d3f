package actions

import "time"

// Result is the outcome class stored on every audit record.
type Result string

const (
	ResultOK                Result = "ok"
	ResultNotFound          Result = "not_found"
	ResultMauticUnreachable Result = "mautic_unreachable"
	ResultMauticError       Result = "mautic_error"
	ResultError             Result = "error"
)

// Valid reports whether r is one of the known results.
func (r Result) Valid() bool {
	switch r {
	case ResultOK, ResultNotFound, ResultMauticUnreachable, ResultMauticError, ResultError:
		return true
	}
	return false
}

// Record is one immutable audit entry. ID is assigned by the store and is
// monotonically increasing.
type Record struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Email       string    `json:"email"`
	Origin      string    `json:"origin"`
	SourceIP    string    `json:"source_ip"`
	Result      Result    `json:"result"`
	ContactID   *string   `json:"contact_id"`
	ErrorDetail *string   `json:"error_detail"`
	RequestID   string    `json:"request_id,omitempty"`
}
