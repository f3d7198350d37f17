package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/validate"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Cause   string                `json:"cause,omitempty"`
	Fields  []validate.FieldError `json:"fields,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	write(w, status, resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if fields := validate.Fields(coreErr.Cause); fields != nil {
			detail.Fields = fields
		} else if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	write(w, status, ErrorResponse{Error: detail})
}

// Fail writes err with the status that matches its code.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrInvalidTime),
		errors.Is(err, core.ErrInvalidMarket):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized),
		errors.Is(err, core.ErrAuthFailed),
		errors.Is(err, core.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrIdentityNotFound),
		errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrSnapshotNotFound),
		errors.Is(err, core.ErrNoSignal):
		return http.StatusNotFound
	case errors.Is(err, core.ErrIdentityTaken),
		errors.Is(err, core.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrSourceFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}
