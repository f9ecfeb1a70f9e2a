// Package ratelimit gates outbound requests to one token per second per host,
// fair FIFO, cancellable, grounded on dab-downloader's musicbrainz client use
// of golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry hands out a per-host token bucket, creating one on first use.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ratePer  rate.Limit
	burst    int
}

// NewRegistry builds a registry where every host's bucket refills at one
// token per second and holds at most burst tokens, so after an idle spell up
// to burst requests may go out back to back.
func NewRegistry(burst int) *Registry {
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		limiters: make(map[string]*rate.Limiter),
		ratePer:  rate.Limit(1), // one token per second per host
		burst:    burst,
	}
}

func (r *Registry) limiterFor(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(r.ratePer, r.burst)
		r.limiters[host] = l
	}
	return l
}

// Wait blocks until a token for host is available or ctx is cancelled. It
// never sleeps outside of the limiter itself (no per-request ad-hoc sleeps).
func (r *Registry) Wait(ctx context.Context, host string) error {
	return r.limiterFor(host).Wait(ctx)
}
