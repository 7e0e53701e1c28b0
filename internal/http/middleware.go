// v0
// internal/http/middleware.go
package httpserver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"nrgchamp/condenser/internal/metrics"
)

// WrapWithLogging records a structured access log entry and the request
// metrics for every call.
func WrapWithLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		logger.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.String("duration", duration.String()),
		)
		if r.URL.Path != "/metrics" {
			metrics.ObserveHTTPRequest(rw.status, duration)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader stores the status code so the middleware can log it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryLogger adapts slog to the handlers.RecoveryHandlerLogger contract.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("http_panic_recovered", slog.String("panic", fmt.Sprint(v...)))
}

// NewHandler stacks the middleware around router: panic recovery, gzip
// for clients that accept it, an optional Apache-style access log and the
// structured request log.
func NewHandler(logger *slog.Logger, accessLog io.Writer, router http.Handler) http.Handler {
	var h http.Handler = handlers.CompressHandler(router)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	return WrapWithLogging(logger, h)
}
