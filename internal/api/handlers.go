package api

import (
	"context"
	"time"

	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
	"github.com/ignite/mautic-dnc-proxy/internal/service/health"
	"github.com/ignite/mautic-dnc-proxy/internal/service/unsubscribe"
)

// Unsubscriber runs the unsubscribe workflow. *unsubscribe.Service satisfies it.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, req unsubscribe.Request) unsubscribe.Response
}

// HealthChecker reports cached upstream reachability. *health.Monitor satisfies it.
type HealthChecker interface {
	Check(ctx context.Context) health.Status
	Snapshot(ctx context.Context) health.Snapshot
}

// ActionLister queries the audit log. *actions.Service satisfies it.
type ActionLister interface {
	List(ctx context.Context, filter actions.ListFilter) ([]actions.Record, error)
}

// RateLimiter admits or rejects a hit for a key. *ratelimit.Limiter satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	unsubscriber Unsubscriber
	health       HealthChecker
	actions      ActionLister
	limiter      RateLimiter
	metrics      *metrics.Metrics

	adminKey      string
	responseFloor time.Duration
	originMaxLen  int
}

// Options carries the handler settings taken from configuration.
type Options struct {
	AdminAPIKey   string
	ResponseFloor time.Duration
	OriginMaxLen  int
}

// NewHandlers creates handlers. limiter and m may be nil.
func NewHandlers(u Unsubscriber, hc HealthChecker, al ActionLister, limiter RateLimiter, m *metrics.Metrics, opts Options) *Handlers {
	if opts.OriginMaxLen <= 0 {
		opts.OriginMaxLen = 255
	}
	return &Handlers{
		unsubscriber:  u,
		health:        hc,
		actions:       al,
		limiter:       limiter,
		metrics:       m,
		adminKey:      opts.AdminAPIKey,
		responseFloor: opts.ResponseFloor,
		originMaxLen:  opts.OriginMaxLen,
	}
}
