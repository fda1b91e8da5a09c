package middleware

import (
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/errors"
	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per remote address for a single
// endpoint category (processing, download-only, ...), per §4.1/§5:
// "default category N requests/min per remote address (configurable);
// long-running submit endpoints are stricter; metadata and status are
// exempt."
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter category allowing perMinute requests per
// remote address, with a burst of burst requests.
func NewRateLimiter(perMinute int, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Limit wraps a handler, rejecting with 429+Retry-After once the caller's
// bucket for this category is empty.
func (rl *RateLimiter) Limit() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			key := remoteKey(r)
			if !rl.limiterFor(key).Allow() {
				errors.WriteHTTPTooManyRequests(w, "rate limit exceeded", 60)
				return
			}
			next(w, r, ps)
		}
	}
}

func remoteKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
