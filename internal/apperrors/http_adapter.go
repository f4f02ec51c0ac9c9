package apperrors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the JSON error body returned by webhook endpoints. The
// traceback field carries the MD5 correlation tag, not a stack trace.
type Envelope struct {
	ErrorType      string `json:"error_type"`
	ErrorTraceback string `json:"error_traceback"`
}

// ParseEnvelope is the fixed body returned when a webhook payload is
// not valid JSON. Path is always present and empty.
type ParseEnvelope struct {
	ErrorType    string   `json:"error_type"`
	ErrorMessage string   `json:"error_message"`
	Path         []string `json:"path"`
}

// NewParseEnvelope returns the canonical not-JSON response body.
func NewParseEnvelope() ParseEnvelope {
	return ParseEnvelope{
		ErrorType:    "json parsability",
		ErrorMessage: "expected json",
		Path:         []string{},
	}
}

// HTTPAdapter maps errors onto status codes and envelopes, logging the
// full error under the tag the envelope exposes.
type HTTPAdapter struct {
	logger *slog.Logger
}

// NewHTTPAdapter creates an adapter. A nil logger falls back to the
// package default.
func NewHTTPAdapter(logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{logger: logger}
}

// StatusCodeFor maps error kinds to HTTP status codes.
func (a *HTTPAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindClient {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError logs err with its correlation tag and writes the envelope.
func (a *HTTPAdapter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	tag := Tag(err)
	level := slog.LevelError
	if KindOf(err) == KindClient {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("error_traceback", tag),
		slog.String("error", err.Error()),
	)

	writeJSON(w, a.StatusCodeFor(err), Envelope{
		ErrorType:      string(KindOf(err)),
		ErrorTraceback: tag,
	})
}

// WriteParseError writes the fixed not-JSON envelope with status 400.
func (a *HTTPAdapter) WriteParseError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.LogAttrs(r.Context(), slog.LevelWarn, "unparsable webhook body",
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusBadRequest, NewParseEnvelope())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_type":"internal","error_traceback":""}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
