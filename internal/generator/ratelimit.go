package generator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped generator with a token bucket.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second to next with the given burst.
// A non-positive rps disables limiting.
func NewRateLimited(next Generator, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Generate waits for a token, then calls the wrapped generator.
func (r *RateLimited) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, req)
}
