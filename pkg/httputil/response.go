package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/logger"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/validator"
)

// Response is the standard JSON response envelope of the portal.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format. Details
// carries a backend error payload verbatim when there is one.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   json.RawMessage   `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the data envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError writes a standardized error response based on the error class.
// Backend 4xx payloads are passed through in Details; refresh failures map to
// 401 SESSION_EXPIRED; transport and 5xx failures map to 502.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID},
		})
		return
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	resp := &ErrorResponse{
		Code:      "INTERNAL_ERROR",
		Message:   "an internal error occurred",
		RequestID: requestID,
	}
	status := http.StatusInternalServerError

	switch apperrors.Classify(err) {
	case apperrors.KindRefresh:
		status = http.StatusUnauthorized
		resp.Code = "SESSION_EXPIRED"
		resp.Message = "session expired, please log in again"
	case apperrors.KindAuth:
		status = http.StatusUnauthorized
		resp.Code = "UNAUTHORIZED"
		resp.Message = "authentication required"
	case apperrors.KindValidation:
		status = http.StatusBadRequest
		resp.Code = clientErrorCode(err)
		resp.Message = err.Error()
		var httpErr *apperrors.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Status
			resp.Message = httpErr.Message
			resp.Details = httpErr.Payload
		}
	case apperrors.KindServer:
		status = http.StatusBadGateway
		resp.Code = "BACKEND_ERROR"
		resp.Message = "the nutrition service returned an error"
		if errors.Is(err, apperrors.ErrServiceUnavail) {
			status = http.StatusServiceUnavailable
			resp.Code = "BACKEND_UNAVAILABLE"
			resp.Message = "the nutrition service is unavailable"
		}
	case apperrors.KindNetwork:
		status = http.StatusBadGateway
		resp.Code = "BACKEND_UNREACHABLE"
		resp.Message = "the nutrition service could not be reached"
	default:
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			status = http.StatusNotFound
			resp.Code = "NOT_FOUND"
			resp.Message = "resource not found"
		case errors.Is(err, apperrors.ErrConflict):
			status = http.StatusConflict
			resp.Code = "CONFLICT"
			resp.Message = err.Error()
		case errors.Is(err, apperrors.ErrForbidden):
			status = http.StatusForbidden
			resp.Code = "FORBIDDEN"
			resp.Message = "access denied"
		}
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: resp})
}

func clientErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, apperrors.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, apperrors.ErrForbidden):
		return "FORBIDDEN"
	default:
		return "INVALID_INPUT"
	}
}

// WriteValidationError writes a standardized validation error response.
// It handles ValidationError from the validator package and returns field-level errors.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

// ParseID parses a positive integer path parameter. If invalid, it writes a
// 400 INVALID_PARAMETER response and returns false.
func ParseID(w http.ResponseWriter, param string) (int, bool) {
	id, err := strconv.Atoi(param)
	if err != nil || id <= 0 {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid id: " + param,
			},
		})
		return 0, false
	}
	return id, true
}
