package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/better-wallet/marketplace/internal/logger"
	"github.com/better-wallet/marketplace/internal/metrics"
)

// Logging logs every request once it completes and records the HTTP
// metrics. Requests are labelled by the matched route pattern so path
// parameters do not explode metric cardinality.
func Logging(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := NewStatusRecorder(w)

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}

			m.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.StatusCode)).Inc()
			m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			log := logger.FromContext(r.Context())
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.StatusCode,
				"duration_ms", elapsed.Milliseconds(),
				"client_ip", ClientIP(r),
			}
			if rec.StatusCode >= http.StatusInternalServerError {
				log.Error("request completed", args...)
				return
			}
			log.Info("request completed", args...)
		})
	}
}
