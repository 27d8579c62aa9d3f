// Package httpretry provides the HTTP transport seam shared by upstream
// clients and a bounded attempt loop for calls that may be repeated.
package httpretry

import (
	"context"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it; tests substitute fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy bounds a repeated operation: at most MaxAttempts calls with a fixed
// Delay between them. There is no backoff or jitter.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do calls op until it reports done, MaxAttempts is reached, or ctx ends
// while waiting between attempts. attempt is 1-based. It returns the number
// of calls made and ctx.Err() if the wait was interrupted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) (done bool)) (int, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	for attempt := 1; attempt <= max; attempt++ {
		if attempt > 1 && p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, ctx.Err()
			}
		}
		if op(ctx, attempt) {
			return attempt, nil
		}
	}
	return max, nil
}
