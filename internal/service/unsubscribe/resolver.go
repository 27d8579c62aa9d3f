package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
)

// ResolvedContact is the single contact selected for an email.
type ResolvedContact struct {
	ID string
}

// NormalizeEmail lower-cases and trims an address. It is the only form used
// for resolution and auditing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolver turns a normalized email into one verified contact id.
type Resolver struct {
	searcher ContactSearcher
}

// NewResolver creates a resolver backed by the given searcher.
func NewResolver(searcher ContactSearcher) *Resolver {
	return &Resolver{searcher: searcher}
}

// Resolve searches Mautic and re-checks every candidate with exact,
// case-insensitive equality; the upstream filter alone is not trusted.
// The first exact match in upstream order wins. Duplicate exact matches
// are an upstream data problem and no preference between them is implied.
//
// Returns ErrNotFound when nothing matches exactly and ErrUpstreamUnavailable
// (wrapping the mautic error) when the search fails. Any other error is
// returned unchanged. There is no retry here.
func (r *Resolver) Resolve(ctx context.Context, email string) (ResolvedContact, error) {
	candidates, err := r.searcher.SearchByEmail(ctx, email)
	if err != nil {
		if isUpstreamFailure(err) {
			return ResolvedContact{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return ResolvedContact{}, err
	}

	var match *mautic.ContactCandidate
	var nearMisses []string
	for i := range candidates {
		c := &candidates[i]
		if !strings.EqualFold(strings.TrimSpace(c.Email), email) {
			nearMisses = append(nearMisses, c.ID)
			continue
		}
		if match == nil {
			match = c
			continue
		}
		logger.Warn("duplicate exact contact match, keeping first",
			"email", email, "kept_contact_id", match.ID, "ignored_contact_id", c.ID)
	}

	if len(nearMisses) > 0 {
		logger.Info("search returned inexact candidates",
			"email", email, "candidate_ids", strings.Join(nearMisses, ","))
	}
	if match == nil {
		return ResolvedContact{}, ErrNotFound
	}
	return ResolvedContact{ID: match.ID}, nil
}

func isUpstreamFailure(err error) bool {
	var te *mautic.TransportError
	var se *mautic.HTTPStatusError
	var de *mautic.DecodeError
	return errors.As(err, &te) || errors.As(err, &se) || errors.As(err, &de)
}
