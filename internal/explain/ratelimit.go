package explain

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an inner provider.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with a burst of one.
// Non-positive perMinute disables pacing.
func NewRateLimited(inner Provider, perMinute int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *RateLimited) Name() string {
	return p.inner.Name()
}

func (p *RateLimited) Explain(ctx context.Context, req Request) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s rate limit: %w", p.inner.Name(), err)
	}
	return p.inner.Explain(ctx, req)
}
