package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-affinity/internal/ports"
)

// RateLimit returns HTTP middleware enforcing a token bucket shared by all
// requests. The limit sets requests per second and burst allows short
// spikes above it. Requests over the limit are rejected with 429 rather
// than queued. A non-positive limit disables limiting.
func RateLimit(limit rate.Limit, burst int, metrics ports.MetricsCollector) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(limit))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.RecordCounter(MetricRateLimited, 1, map[string]string{"path": r.URL.Path})
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": ports.ErrRateLimited.Error()})
		})
	}
}
