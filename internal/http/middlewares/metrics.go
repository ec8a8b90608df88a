package middlewares

import (
	"net/http"
	"time"
)

// HTTPObserver receives one observation per request.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

// WithMetrics reports each request under the fixed route label, never the raw
// path, to keep label cardinality bounded.
func WithMetrics(obs HTTPObserver, route string) Middleware {
	if obs == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)
			obs.ObserveHTTP(route, r.Method, rec.status, time.Since(start))
		})
	}
}
