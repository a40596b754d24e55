package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Observation describes a completed request.
type Observation struct {
	Method   string
	Path     string
	Status   int
	Bytes    int64
	Duration time.Duration
}

// WithObserver calls fn after every request. Requests that never wrote a status count as 200.
func WithObserver(fn func(*http.Request, Observation)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			fn(r, Observation{
				Method:   r.Method,
				Path:     r.URL.Path,
				Status:   status,
				Bytes:    sw.bytes,
				Duration: time.Since(start),
			})
		})
	}
}

func WithAccessLog(logger *slog.Logger) Middleware {
	return WithObserver(func(r *http.Request, o Observation) {
		level := slog.LevelInfo
		if o.Status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request",
			"request_id", RequestIDFromContext(r.Context()),
			"method", o.Method,
			"path", o.Path,
			"status", o.Status,
			"bytes", o.Bytes,
			"duration_ms", o.Duration.Milliseconds(),
		)
	})
}
