package web

// errors.go provides unified error response handling for the web layer.
//
// Every failed request is logged with the technical error and the request
// ID, then answered with the user message from core.MapError. API routes get
// JSON; pages get a rendered alert.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/importset/internal/core"
	"github.com/JonMunkholm/importset/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of a build or history error.
func statusFor(err error) int {
	var (
		inputErr    *core.InputError
		countErr    *core.MetadataCountError
		parseErr    *core.MetadataParseError
		identityErr *core.IdentityMismatchError
		catalogErr  *core.CatalogError
		noTableErr  *core.NoTableMatchError
	)

	switch {
	case errors.Is(err, core.ErrTooManyBuilds):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrHistoryDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &inputErr):
		switch inputErr.Kind {
		case core.InputRequest:
			return http.StatusBadRequest
		case core.InputArchiveInvalid:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusNotFound
		}
	case errors.As(err, &countErr), errors.As(err, &parseErr), errors.As(err, &identityErr),
		errors.As(err, &catalogErr), errors.As(err, &noTableErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if rerr := templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w); rerr != nil {
		slog.Error("render error alert", "error", rerr)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
