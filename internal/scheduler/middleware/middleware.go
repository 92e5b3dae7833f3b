package middleware

import (
	"net/http"
	"time"

	"go-batchd/pkg/handlers"

	"go.opentelemetry.io/otel/attribute"
)

// Middleware bundles the scheduler-specific HTTP middleware.
type Middleware struct{}

// New creates a new middleware instance
func New() *Middleware {
	return &Middleware{}
}

// RequestLogging adds request logging for scheduler endpoints
func (m *Middleware) RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Skip health check logging to reduce noise
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := handlers.NewResponseWrapper(w)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		handlers.LogRequest(r, wrapped.StatusCode, duration, map[string]interface{}{
			"module": "scheduler",
			"method": r.Method,
			"path":   r.URL.Path,
		})
	})
}

// Tracing adds OpenTelemetry tracing for scheduler operations
func (m *Middleware) Tracing(operationName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span, r := handlers.StartHTTPSpan(r, operationName,
				attribute.String("service", "scheduler"),
				attribute.String("operation", operationName),
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
			)
			defer span.End()

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security headers
func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)
	})
}
