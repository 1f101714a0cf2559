package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Logger returns a middleware that logs every request. Probes and the
// metrics scrape are logged at debug level only.
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			if quiet(r.URL.Path) {
				logger.Debug("HTTP request", fields...)
				return
			}
			logger.Info("HTTP request", append(fields,
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)...)
		})
	}
}

func quiet(path string) bool {
	switch strings.TrimSuffix(path, "/") {
	case "/api/v1/health", "/api/v1/ready", "/api/v1/metrics":
		return true
	}
	return false
}

// statusWriter captures the status code. It forwards Flush so that event
// streams keep working behind the middleware.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
