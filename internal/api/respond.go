package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/p-n-ai/exam-shuffler/internal/session"
)

// ErrorPayload is the error part of an envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries request metadata.
type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps every JSON response.
type Envelope struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	env.Meta.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, Envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, r, status, Envelope{Error: &ErrorPayload{Code: code, Message: msg}})
}

// writeSessionError maps session error kinds to statuses. Only the
// user-facing message leaves the server; the cause is logged.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var se *session.Error
	if !errors.As(err, &se) {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.")
		return
	}

	status := statusFor(se.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "kind", se.Kind, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "kind", se.Kind, "error", err)
	}
	writeError(w, r, status, string(se.Kind), se.Message)
}

func statusFor(kind session.Kind) int {
	switch kind {
	case session.KindInput:
		return http.StatusBadRequest
	case session.KindEmptyResult:
		return http.StatusUnprocessableEntity
	case session.KindState:
		return http.StatusConflict
	case session.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
