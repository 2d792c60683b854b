package logging

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// responseWriterWrapper captures the status code and bytes written so
// the request log line can report them.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

var wrapperPool = sync.Pool{
	New: func() any {
		return &responseWriterWrapper{}
	},
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware logs one line per request with method, path,
// status, size and duration. Probe endpoints are skipped to keep the
// logs readable.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		wrapper := wrapperPool.Get().(*responseWriterWrapper)
		wrapper.ResponseWriter = w
		wrapper.statusCode = http.StatusOK
		wrapper.written = 0
		defer wrapperPool.Put(wrapper)

		next.ServeHTTP(wrapper, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"bytes", wrapper.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		}
		if reqID, ok := r.Context().Value(middleware.RequestIDKey).(string); ok && reqID != "" {
			attrs = append(attrs, "request_id", reqID)
		}

		if wrapper.statusCode >= 500 {
			Error("Request failed", attrs...)
		} else if wrapper.statusCode >= 400 {
			Warn("Request rejected", attrs...)
		} else {
			Info("Request completed", attrs...)
		}
	})
}
