package httpclient

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
)

// makeResponse creates an *http.Response with the given status code and body string.
func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func parse(t *testing.T, status int, body string) *apperrors.HTTPError {
	t.Helper()
	err := ParseResponseError(makeResponse(status, body))
	require.Error(t, err)

	var httpErr *apperrors.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %T: %v", err, err)
	return httpErr
}

func TestParseResponseError_Detail(t *testing.T) {
	httpErr := parse(t, http.StatusUnauthorized, `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`)

	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.Equal(t, "Given token not valid for any token type", httpErr.Message)
	assert.ErrorIs(t, httpErr, apperrors.ErrUnauthorized)
}

func TestParseResponseError_FieldErrorsKeptVerbatim(t *testing.T) {
	body := `{"email":["Enter a valid email address."],"password":["This field is required."]}`
	httpErr := parse(t, http.StatusBadRequest, body)

	assert.Equal(t, "email: Enter a valid email address.", httpErr.Message)
	assert.JSONEq(t, body, string(httpErr.Payload))
	assert.Equal(t, apperrors.KindValidation, apperrors.Classify(httpErr))
}

func TestParseResponseError_NonFieldErrors(t *testing.T) {
	httpErr := parse(t, http.StatusBadRequest, `{"non_field_errors":["Invalid credentials"]}`)
	assert.Equal(t, "Invalid credentials", httpErr.Message)
}

func TestParseResponseError_StructuredEnvelope(t *testing.T) {
	httpErr := parse(t, http.StatusConflict, `{"error":{"code":"ALREADY_EXISTS","message":"email already registered"}}`)
	assert.Equal(t, "email already registered", httpErr.Message)
	assert.ErrorIs(t, httpErr, apperrors.ErrConflict)
}

func TestParseResponseError_ErrorString(t *testing.T) {
	httpErr := parse(t, http.StatusBadRequest, `{"error":"Invalid token"}`)
	assert.Equal(t, "Invalid token", httpErr.Message)
}

func TestParseResponseError_PlainTextBody(t *testing.T) {
	httpErr := parse(t, http.StatusBadGateway, "upstream timed out\n")

	assert.Equal(t, "upstream timed out", httpErr.Message)
	var payload string
	require.NoError(t, json.Unmarshal(httpErr.Payload, &payload))
	assert.Equal(t, "upstream timed out\n", payload)
}

func TestParseResponseError_EmptyBody(t *testing.T) {
	httpErr := parse(t, http.StatusNotFound, "")
	assert.Equal(t, "Not Found", httpErr.Message)
	assert.Nil(t, httpErr.Payload)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.True(t, IsSuccess(204))
	assert.False(t, IsSuccess(302))
}
