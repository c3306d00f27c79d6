package v1

import (
	"context"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/pocketledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "invalid_data") }

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, errs.ErrNonZeroBalance):
		return http.StatusConflict, "balance_not_zero"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusBadRequest, "invalid_data"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "record_not_found"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "record_already_exists"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeServiceErr renders a service error. Internal failures are logged and
// their message is not exposed.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "kind", errs.Kind(err), "err", err)
		msg = http.StatusText(status)
	}
	writeErr(w, status, msg, code)
}
