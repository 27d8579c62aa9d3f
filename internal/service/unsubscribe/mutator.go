package unsubscribe

import (
	"context"
	"errors"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httpretry"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
)

// OutcomeStatus is the terminal state of a suppression.
type OutcomeStatus int

const (
	// Success means one attempt returned 200 or 201.
	Success OutcomeStatus = iota
	// RetriesExhausted means every allowed attempt failed.
	RetriesExhausted
)

func (s OutcomeStatus) String() string {
	if s == Success {
		return "success"
	}
	return "retries_exhausted"
}

// Outcome reports how a suppression ended. LastStatus is the HTTP status of
// the final failed attempt, or 0 when it failed in transport.
type Outcome struct {
	Status     OutcomeStatus
	Attempts   int
	LastStatus int
}

// MutatorConfig carries the DNC payload and attempt policy.
type MutatorConfig struct {
	Reason  int
	Comment string
	Policy  httpretry.Policy
}

// Mutator adds a resolved contact's email channel to Do Not Contact.
type Mutator struct {
	client  DNCAdder
	cfg     MutatorConfig
	metrics *metrics.Metrics
}

// NewMutator creates a mutator. A Policy with MaxAttempts < 1 makes one attempt.
func NewMutator(client DNCAdder, cfg MutatorConfig, m *metrics.Metrics) *Mutator {
	return &Mutator{client: client, cfg: cfg, metrics: m}
}

// Suppress issues the DNC add, repeating it up to the policy's bound on any
// non-success. The add is idempotent upstream so a repeat after an ambiguous
// failure is safe.
//
// On RetriesExhausted the returned error is the last attempt's
// *mautic.TransportError when that attempt failed in transport and nil when
// it failed with an HTTP status. Any other error stops the loop and is
// returned as is.
func (m *Mutator) Suppress(ctx context.Context, contactID string) (Outcome, error) {
	req := mautic.DNCRequest{Reason: m.cfg.Reason, Comments: m.cfg.Comment}

	var (
		succeeded  bool
		lastStatus int
		lastErr    error
		unexpected error
	)

	attempts, err := m.cfg.Policy.Do(ctx, func(ctx context.Context, attempt int) bool {
		resp, err := m.client.AddEmailDNC(ctx, contactID, req)
		if err == nil {
			succeeded = true
			m.metrics.DNCAttempt("success")
			if resp.BodyErrors != "" {
				logger.Warn("dnc add accepted with error body",
					"contact_id", contactID, "status", resp.Status, "errors", resp.BodyErrors)
			}
			return true
		}

		var se *mautic.HTTPStatusError
		var te *mautic.TransportError
		switch {
		case errors.As(err, &se):
			lastStatus, lastErr = se.Status, nil
			m.metrics.DNCAttempt("http_error")
			logger.Warn("dnc add rejected",
				"contact_id", contactID, "attempt", attempt, "status", se.Status, "body", se.Body)
			return false
		case errors.As(err, &te):
			lastStatus, lastErr = 0, te
			m.metrics.DNCAttempt("transport_error")
			logger.Warn("dnc add transport failure",
				"contact_id", contactID, "attempt", attempt, "kind", te.Kind(), "error", te.Err)
			return false
		default:
			unexpected = err
			return true
		}
	})

	out := Outcome{Status: RetriesExhausted, Attempts: attempts, LastStatus: lastStatus}
	switch {
	case unexpected != nil:
		return out, unexpected
	case succeeded:
		return Outcome{Status: Success, Attempts: attempts}, nil
	case err != nil:
		return out, err
	}
	return out, lastErr
}
