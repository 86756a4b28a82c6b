package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Logger logs one line per request with its trace id.
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("trace_id", GetTraceID(r)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				log.Error("http request", fields...)
				return
			}
			log.Info("http request", fields...)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush lets SSE handlers stream through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithTrace returns log annotated with the request's trace id.
func WithTrace(log *zap.Logger, r *http.Request) *zap.Logger {
	if id := GetTraceID(r); id != "" {
		return log.With(zap.String("trace_id", id))
	}
	return log
}

// Chain wraps h with the standard request middleware, outermost first:
// tracing, logging, metrics.
func Chain(h http.Handler, log *zap.Logger) http.Handler {
	return Trace(Logger(log)(Metrics(h)))
}
