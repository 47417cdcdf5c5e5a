package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter admits up to limit messages per window, refilling evenly.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMessages
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now:     time.Now,
	}
}

func (r *rateLimiter) allow() bool {
	return r.limiter.AllowN(r.now(), 1)
}
