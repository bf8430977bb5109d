package backend

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/quarryhq/quarry/internal/model"
)

// rateLimited throttles calls to the wrapped adapter. The limiter is shared
// across sessions, so a backend's global rate holds no matter how many
// sessions dispatch to it.
type rateLimited struct {
	Adapter
	limiter *rate.Limiter
}

// WithRateLimit wraps an adapter with a requests-per-second limit.
// A non-positive rps returns the adapter unwrapped.
func WithRateLimit(a Adapter, rps float64, burst int) Adapter {
	if rps <= 0 {
		return a
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{
		Adapter: a,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimited) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Adapter.Research(ctx, query, sources)
}
