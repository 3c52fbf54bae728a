package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Client-side sentinels for failures talking to the backend API.
var (
	ErrNetwork        = errors.New("network error")
	ErrServer         = errors.New("server error")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefreshToken = errors.New("no refresh token")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// HTTPError is a non-2xx response returned by the backend API. Payload holds
// the raw response body so validation messages reach the UI untouched.
type HTTPError struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// Unwrap maps the status code onto the sentinel of its error class.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status == http.StatusServiceUnavailable:
		return ErrServiceUnavail
	case e.Status >= 500:
		return ErrServer
	case e.Status >= 400:
		return ErrInvalidInput
	default:
		return nil
	}
}

// RefreshError reports a failed token refresh. It carries both the refresh
// failure and the 401 that triggered it, so errors.Is matches either.
type RefreshError struct {
	Cause    error
	Original error
}

func (e *RefreshError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("token refresh failed: %v (after: %v)", e.Cause, e.Original)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *RefreshError) Unwrap() []error {
	errs := []error{ErrRefreshFailed}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Original != nil {
		errs = append(errs, e.Original)
	}
	return errs
}

// Kind is the client-side error class of a failed backend call.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindRefresh
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRefresh:
		return "refresh"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Classify maps err onto the client error taxonomy. Refresh failures win over
// the 401 they wrap.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNoRefreshToken) {
		return KindRefresh
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusUnauthorized:
			return KindAuth
		case httpErr.Status >= 500:
			return KindServer
		case httpErr.Status >= 400:
			return KindValidation
		}
		return KindUnknown
	}

	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrServer), errors.Is(err, ErrServiceUnavail):
		return KindServer
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	}
	return KindUnknown
}
