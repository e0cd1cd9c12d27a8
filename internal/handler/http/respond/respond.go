// Package respond writes JSON responses and maps classified domain errors to
// HTTP status codes without leaking upstream details.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"nexus-voice/internal/domain/entity"
)

// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// headers are already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes err's message verbatim.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, ErrorBody{Error: err.Error()})
}

var safeFragments = []string{
	"required",
	"invalid",
	"not found",
	"unknown",
	"must",
	"cannot be",
	"too long",
	"too large",
}

// SafeError returns validation style messages as they are. Anything else,
// and every 5xx, is logged sanitized and answered with a generic message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	safe := false
	for _, f := range safeFragments {
		if strings.Contains(lower, f) {
			safe = true
			break
		}
	}
	if code >= 500 {
		safe = false
	}

	if safe {
		JSON(w, code, ErrorBody{Error: msg})
		return
	}
	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, ErrorBody{Error: "internal server error"})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var vErr *entity.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &vErr),
		errors.Is(err, entity.ErrInvalidInput),
		errors.Is(err, entity.ErrUnknownCapability):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	}

	switch entity.KindOf(err) {
	case entity.KindConcurrencyExceeded:
		return http.StatusTooManyRequests
	case entity.KindTimeout:
		return http.StatusGatewayTimeout
	case entity.KindConnectionLost:
		return http.StatusServiceUnavailable
	case entity.KindSessionNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// Classified writes err with the status from StatusFor. Client errors keep
// their message. Upstream failures only expose the error kind.
func Classified(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code < 500 && code != http.StatusTooManyRequests {
		body := ErrorBody{Error: err.Error()}
		var e *entity.Error
		if errors.As(err, &e) {
			body.Kind = e.Kind.String()
		}
		JSON(w, code, body)
		return
	}

	kind := entity.KindOf(err)
	slog.Default().Warn("request failed",
		slog.Int("code", code),
		slog.String("kind", kind.String()),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, ErrorBody{Error: http.StatusText(code), Kind: kind.String()})
}
