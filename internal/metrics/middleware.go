package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware records HTTP request duration and count by route pattern.
// The wrapped writer keeps http.Flusher, which the streaming transports need.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			labels := []string{r.Method, path, strconv.Itoa(status)}
			HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		})
	}
}
