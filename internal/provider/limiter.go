package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies token-bucket limits per model identifier. Models
// without an explicit limit share a default bucket so a burst of cheap
// calls cannot starve the expensive ones.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	rps      float64
	burst    int
	mu       sync.RWMutex
}

// NewRateLimiter creates a limiter with a default requests-per-second
// budget applied to every model not registered explicitly.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		fallback: rate.NewLimiter(rate.Limit(rps), burst),
		rps:      rps,
		burst:    burst,
	}
}

// RegisterModel sets a dedicated budget for one model. Non-positive
// values fall back to the default budget.
func (r *RateLimiter) RegisterModel(model string, rps float64, burst int) {
	if rps <= 0 {
		rps = r.rps
	}
	if burst <= 0 {
		burst = r.burst
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[model] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until a call for the model is admitted or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, model string) error {
	return r.limiterFor(model).Wait(ctx)
}

func (r *RateLimiter) limiterFor(model string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.limiters[model]; ok {
		return l
	}
	return r.fallback
}
