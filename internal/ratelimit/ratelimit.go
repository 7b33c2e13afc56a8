// Package ratelimit provides a process-local, per-host token bucket.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host so the archive client
// can rate-limit independently across hosts it talks to.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// New builds a HostLimiter that allows rps requests/second per host,
// with a burst equal to the refill rate rounded up (minimum 1).
func New(rps float64) *HostLimiter {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.rps), h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a token for host is available or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiterFor(host).Wait(ctx)
}

// SetRate updates the refill rate for a specific host (e.g. after
// observing a Retry-After header), leaving other hosts untouched.
func (h *HostLimiter) SetRate(host string, rps float64) {
	h.limiterFor(host).SetLimit(rate.Limit(rps))
}
