package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail and the request id, then
// returned as JSON carrying the user-friendly message, action and code from
// core.MapError. statusFor picks the HTTP status from the error's type.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/contactsync/internal/core"
	"github.com/JonMunkholm/contactsync/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an engine error to the HTTP status returned to the client.
func statusFor(err error) int {
	var (
		pe *core.PreconditionError
		fe *core.ParseError
		re *core.RemoteError
		te *core.TransportError
	)

	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrNoMatches),
		errors.Is(err, core.ErrNoErrors):
		return http.StatusNotFound
	case errors.Is(err, core.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, core.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.As(err, &re):
		if re.HTTPStatus == http.StatusUnauthorized || re.HTTPStatus == http.StatusForbidden {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &te):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}
