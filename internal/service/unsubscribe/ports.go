package unsubscribe

import (
	"context"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
)

// ContactSearcher runs the upstream contact search. *mautic.Client satisfies it.
type ContactSearcher interface {
	SearchByEmail(ctx context.Context, email string) ([]mautic.ContactCandidate, error)
}

// DNCAdder applies the upstream DNC mutation. *mautic.Client satisfies it.
type DNCAdder interface {
	AddEmailDNC(ctx context.Context, id string, req mautic.DNCRequest) (*mautic.DNCResponse, error)
}

// AuditRecorder accepts one record per request. *actions.Recorder satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, rec actions.Record)
}

// Mirror propagates a successful suppression to a secondary system.
type Mirror interface {
	SuppressEmail(ctx context.Context, email string) error
}
