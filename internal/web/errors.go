package web

// errors.go provides unified error response handling for the web layer.
//
// All errors are logged with full technical detail server-side and returned
// to clients as user-friendly JSON with a support code and, where useful, a
// suggested action. The request ID is logged alongside so a quoted support
// code can be correlated with the technical entry.

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/planops/capacity/internal/capacity"
	"github.com/planops/capacity/internal/core"
	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/logging"
	"github.com/planops/capacity/internal/tabular"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user-facing
// message with a status derived from the error class.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusForError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError classifies an error into an HTTP status code.
func statusForError(err error) int {
	var (
		headerMismatch  *core.HeaderMismatchError
		malformed       *tabular.MalformedRowError
		invalidPeriod   *capacity.InvalidPeriodError
		invalidHours    *capacity.InvalidHoursError
		unknownResource *capacity.UnknownResourceError
	)

	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, core.ErrUnknownKind),
		errors.As(err, &unknownResource):
		return http.StatusNotFound

	case errors.Is(err, core.ErrImportBusy):
		return http.StatusConflict

	case errors.As(err, &headerMismatch),
		errors.As(err, &malformed),
		errors.As(err, &invalidPeriod),
		errors.As(err, &invalidHours),
		errors.Is(err, core.ErrFiscalYearRequired):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
