package server

import (
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/logging"
)

// chain applies correlation id assignment, request logging and panic
// recovery around a handler, outermost first.
func chain(logger *slog.Logger, adapter *apperrors.HTTPAdapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return correlationMiddleware(loggingMiddleware(logger, recoveryMiddleware(logger, adapter, next)))
	}
}

// correlationMiddleware assigns each request a fresh correlation id.
// Handlers that spawn background work carry the id over so the whole
// task logs under one log_context value.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithID(r.Context(), logging.NewID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs method, path, status and duration per request.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(wrapped.statusCode),
			logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	})
}

// recoveryMiddleware converts handler panics into structured error
// responses instead of dropped connections.
func recoveryMiddleware(logger *slog.Logger, adapter *apperrors.HTTPAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.LogAttrs(r.Context(), slog.LevelError, "HTTP handler panic",
					slog.Any("panic", rec),
					logfields.Method(r.Method),
					logfields.Path(r.URL.Path))
				adapter.WriteError(w, r, apperrors.Internal("handler panic", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
