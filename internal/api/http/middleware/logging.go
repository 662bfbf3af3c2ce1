package middleware

import (
	"net/http"
	"time"

	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/logger"
)

// statusRecorder remembers the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging logs every HTTP request with its status and duration.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		log := l.logger.With(
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", transport.ClientIP(r),
		)
		args := []any{
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			log.Error("HTTP request failed", args...)
			return
		}
		log.Info("HTTP request completed", args...)
	})
}
