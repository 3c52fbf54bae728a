package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
)

const maxErrorBody = 1 << 20 // 1 MB

// structuredError mirrors the {"error":{"code","message"}} envelope.
type structuredError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and turns it
// into an *apperrors.HTTPError. The raw body is kept as the payload; Message
// is a best-effort single line pulled from the common backend shapes
// ({"detail": ...}, {"error": ...}, {"message": ...}, field error maps).
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &apperrors.HTTPError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("failed to read body: %v", err),
		}
	}

	httpErr := &apperrors.HTTPError{
		Status:  resp.StatusCode,
		Message: extractMessage(body),
	}
	if json.Valid(body) {
		httpErr.Payload = json.RawMessage(body)
	} else if len(body) > 0 {
		encoded, _ := json.Marshal(string(body))
		httpErr.Payload = encoded
	}
	if httpErr.Message == "" {
		httpErr.Message = http.StatusText(resp.StatusCode)
	}
	return httpErr
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var structured structuredError
	if json.Unmarshal(body, &structured) == nil && structured.Error != nil {
		return structured.Error.Message
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return strings.TrimSpace(string(body))
	}

	for _, key := range []string{"detail", "error", "message"} {
		if raw, ok := fields[key]; ok {
			if msg := firstString(raw); msg != "" {
				return msg
			}
		}
	}

	if raw, ok := fields["non_field_errors"]; ok {
		if msg := firstString(raw); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msg := firstString(fields[k]); msg != "" {
			return k + ": " + msg
		}
	}
	return ""
}

// firstString returns raw as a string, or the first string element of raw
// when it is an array.
func firstString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsSuccess returns true for 2xx status codes.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
