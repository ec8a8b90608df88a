package router

import (
	"context"

	mw "github.com/dropDatabas3/userauth/internal/http/middlewares"
	"github.com/dropDatabas3/userauth/internal/rate"
)

// RateAdapter exposes a rate.Limiter to the HTTP middleware.
type RateAdapter struct {
	Limiter rate.Limiter
}

func (a RateAdapter) Allow(ctx context.Context, key string) (mw.RateLimitResult, error) {
	res, err := a.Limiter.Allow(ctx, key)
	if err != nil {
		return mw.RateLimitResult{}, err
	}
	return mw.RateLimitResult{
		Allowed:     res.Allowed,
		Remaining:   res.Remaining,
		RetryAfter:  res.RetryAfter,
		WindowTTL:   res.WindowTTL,
		CurrentHits: res.CurrentHits,
	}, nil
}
