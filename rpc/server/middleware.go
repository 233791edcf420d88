package server

import (
	"fmt"
	"net/http"
	"time"
)

// responseWriter is a custom ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument counts and times every request per route and logs it at debug level
func (s *Server) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.metrics.GetOrCreateCounter(
			fmt.Sprintf(`ekv_http_requests_total{route=%q,code="%d"}`, r.Pattern, rw.statusCode),
		).Inc()
		s.metrics.GetOrCreateHistogram(
			fmt.Sprintf(`ekv_http_request_duration_seconds{route=%q}`, r.Pattern),
		).Update(duration.Seconds())

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
