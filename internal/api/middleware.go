package api

import (
	"net/http"
	"time"

	"github.com/kbralten/vxi-dash/internal/ports"
)

// statusWriter captures the status code written by the inner handler so
// LoggingMiddleware can report it after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request with method, path, status,
// and latency.
func LoggingMiddleware(obs ports.Observability, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		obs.LogInfo("http request",
			ports.Field{Key: "method", Value: r.Method},
			ports.Field{Key: "path", Value: r.URL.Path},
			ports.Field{Key: "status", Value: sw.status},
			ports.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		)
	})
}

// RecoveryMiddleware converts a panic in the handler chain into a 500
// instead of crashing the process (§7 "Internal": "caught at task boundary").
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
