package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
)

// Error details stored on audit records.
const (
	DetailRetryExhausted          = "dnc_retry_exhausted"
	DetailRetryExhaustedTransport = "dnc_retry_exhausted:transport"
	DetailInternal                = "internal"
)

// Response is the only thing the caller learns about a request.
type Response int

const (
	// ResponseOK covers success, unknown addresses and failed suppressions alike.
	ResponseOK Response = iota
	// ResponseServiceUnavailable means the contact search could not run.
	ResponseServiceUnavailable
)

// Request is one unsubscribe submission.
type Request struct {
	Email     string
	Origin    string
	SourceIP  string
	RequestID string
}

// Service runs resolve, suppress and audit for each request.
type Service struct {
	resolver *Resolver
	mutator  *Mutator
	recorder AuditRecorder
	mirror   Mirror
	metrics  *metrics.Metrics

	mirrorTimeout time.Duration
	wg            sync.WaitGroup
}

// NewService wires the workflow. mirror may be nil.
func NewService(resolver *Resolver, mutator *Mutator, recorder AuditRecorder, mirror Mirror, m *metrics.Metrics) *Service {
	return &Service{
		resolver:      resolver,
		mutator:       mutator,
		recorder:      recorder,
		mirror:        mirror,
		metrics:       m,
		mirrorTimeout: 10 * time.Second,
	}
}

// Unsubscribe processes one request to completion and returns the external
// response. The work runs detached from ctx's cancellation: once accepted, a
// request is resolved, suppressed and audited even if the client goes away.
func (s *Service) Unsubscribe(ctx context.Context, req Request) Response {
	ctx = context.WithoutCancel(ctx)

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	email := NormalizeEmail(req.Email)
	rec := actions.Record{
		Email:     email,
		Origin:    req.Origin,
		SourceIP:  req.SourceIP,
		RequestID: req.RequestID,
	}

	resp := s.run(ctx, email, &rec)

	s.recorder.Record(ctx, rec)
	s.metrics.UnsubscribeResult(string(rec.Result))
	return resp
}

func (s *Service) run(ctx context.Context, email string, rec *actions.Record) Response {
	contact, err := s.resolver.Resolve(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		rec.Result = actions.ResultNotFound
		logger.Info("unsubscribe: no exact match", "email", email, "request_id", rec.RequestID)
		return ResponseOK

	case errors.Is(err, ErrUpstreamUnavailable):
		rec.Result, rec.ErrorDetail = classifySearchFailure(err)
		logger.Warn("unsubscribe: search failed",
			"email", email, "request_id", rec.RequestID, "result", rec.Result, "error", err)
		return ResponseServiceUnavailable

	case err != nil:
		rec.Result = actions.ResultError
		rec.ErrorDetail = strPtr(DetailInternal)
		logger.Error("unsubscribe: unexpected search error",
			"email", email, "request_id", rec.RequestID, "error", err)
		return ResponseServiceUnavailable
	}

	rec.ContactID = strPtr(contact.ID)

	outcome, err := s.mutator.Suppress(ctx, contact.ID)
	if outcome.Status == Success {
		rec.Result = actions.ResultOK
		logger.Info("unsubscribe: contact suppressed",
			"email", email, "contact_id", contact.ID, "attempts", outcome.Attempts, "request_id", rec.RequestID)
		s.mirrorAsync(ctx, email)
		return ResponseOK
	}

	rec.Result = actions.ResultError
	var te *mautic.TransportError
	switch {
	case err == nil:
		rec.ErrorDetail = strPtr(DetailRetryExhausted)
	case errors.As(err, &te):
		rec.ErrorDetail = strPtr(DetailRetryExhaustedTransport)
	default:
		rec.ErrorDetail = strPtr(DetailInternal)
		logger.Error("unsubscribe: unexpected mutation error",
			"email", email, "contact_id", contact.ID, "request_id", rec.RequestID, "error", err)
		return ResponseOK
	}
	logger.Error("unsubscribe: dnc retries exhausted",
		"email", email,
		"contact_id", contact.ID,
		"attempts", outcome.Attempts,
		"last_status", outcome.LastStatus,
		"request_id", rec.RequestID)
	return ResponseOK
}

func (s *Service) mirrorAsync(ctx context.Context, email string) {
	if s.mirror == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		mctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
		defer cancel()
		if err := s.mirror.SuppressEmail(mctx, email); err != nil {
			logger.Warn("ses mirror failed", "email", email, "error", err)
			s.metrics.MirrorFailed()
		}
	}()
}

// Wait blocks until background mirror calls have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// classifySearchFailure maps a wrapped search error to the audit result and a
// short detail: "transport:<kind>", "http:<status>" or "decode".
func classifySearchFailure(err error) (actions.Result, *string) {
	var te *mautic.TransportError
	var se *mautic.HTTPStatusError
	switch {
	case errors.As(err, &te):
		return actions.ResultMauticUnreachable, strPtr("transport:" + te.Kind())
	case errors.As(err, &se):
		return actions.ResultMauticError, strPtr(fmt.Sprintf("http:%d", se.Status))
	default:
		return actions.ResultMauticError, strPtr("decode")
	}
}

func strPtr(s string) *string { return &s }
