package actions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
)

// Pagination bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Recorder appends audit records without holding up the caller.
type Recorder struct {
	repo    Repository
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to repo with a per-write deadline.
func NewRecorder(repo Repository, timeout time.Duration, m *metrics.Metrics) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{repo: repo, timeout: timeout, metrics: m, now: time.Now}
}

// Record schedules rec for append and returns immediately. The write runs on
// a context detached from ctx's cancellation so a client disconnect cannot
// drop it. Failures are logged and counted only.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("audit write panicked", "result", rec.Result, "request_id", rec.RequestID, "panic", p)
				r.metrics.AuditWriteFailed()
			}
		}()

		wctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		if _, err := r.repo.Append(wctx, &rec); err != nil {
			logger.Error("audit write failed",
				"result", rec.Result,
				"email", rec.Email,
				"request_id", rec.RequestID,
				"error", err)
			r.metrics.AuditWriteFailed()
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Service is the read-only operator query over the audit log.
type Service struct {
	repo Repository
}

// NewService creates a query service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns audit records matching filter, most recent first. A zero
// Limit means DefaultLimit.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	filter.Email = strings.ToLower(strings.TrimSpace(filter.Email))
	if filter.Limit == 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit < 1 || filter.Limit > MaxLimit {
		return nil, ErrInvalidLimit
	}
	if filter.Offset < 0 {
		return nil, ErrInvalidOffset
	}
	if filter.Result != "" && !filter.Result.Valid() {
		return nil, ErrInvalidResult
	}

	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
