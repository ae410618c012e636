package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"prompt-comparator/internal/models"
)

type rateLimited struct {
	Adapter
	limiter *rate.Limiter
}

// RateLimited throttles a's sends to perMinute requests, allowing a burst of one.
// Model listings are not throttled. A non-positive perMinute returns a unchanged.
func RateLimited(a Adapter, perMinute int) Adapter {
	if perMinute <= 0 {
		return a
	}
	return &rateLimited{
		Adapter: a,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *rateLimited) Send(ctx context.Context, req Request) (models.Message, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.Message{}, NewTransportError(r.ID(), err)
	}
	return r.Adapter.Send(ctx, req)
}
