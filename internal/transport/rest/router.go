// Package rest exposes the affinity service over HTTP.
package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-affinity/infrastructure/middleware"
	"github.com/ahrav/go-affinity/internal/ports"
)

// Container holds the router's dependencies.
type Container struct {
	Service AffinityService

	// Metrics receives per-request counters and latencies. Optional.
	Metrics ports.MetricsCollector

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// RateLimit is the sustained request rate for /v1 routes. Zero disables
	// limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()
	h := NewAffinityHandler(c.Service)

	r.Use(requestMetrics(c.Metrics))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	gatherer := c.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Routes sit on the root router: a mux subrouter reports a method
	// mismatch as 404.
	limited := middleware.RateLimit(rate.Limit(c.RateLimit), c.RateBurst, c.Metrics)
	v1 := func(path string, handler http.HandlerFunc, method string) {
		r.Handle("/v1"+path, limited(handler)).Methods(method)
	}
	v1("/forms/{formID}/affinity", h.Compute, http.MethodPost)
	v1("/forms/{formID}/affinity", h.Active, http.MethodGet)
	v1("/forms/{formID}/affinity/export", h.Export, http.MethodGet)
	v1("/forms/{formID}/respondents/{profileID}/group", h.Group, http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestMetrics counts requests by route template, method and status.
func requestMetrics(metrics ports.MetricsCollector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.RecordCounter(middleware.MetricHTTPRequests, 1, map[string]string{
				"route":  route,
				"method": r.Method,
				"code":   strconv.Itoa(rec.status),
			})
			metrics.RecordLatency(middleware.OperationHTTPServer, time.Since(start), map[string]string{"route": route})
		})
	}
}
