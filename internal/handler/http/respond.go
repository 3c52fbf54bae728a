package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/navigation"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httputil"
)

const maxBodyBytes = 1 << 20

// writeError answers a failed flow. A refresh failure that forced a
// navigation becomes a redirect to that location; everything else goes
// through the standard error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if apperrors.Classify(err) == apperrors.KindRefresh {
		if loc, ok := navigation.PendingRedirect(r.Context()); ok {
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, loc, http.StatusSeeOther)
			return
		}
	}
	httputil.WriteError(w, r, err, logger)
}

// decodeJSON reads a JSON body into dst. It writes the 400 itself and
// reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid request body: " + err.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: msg},
		})
		return false
	}
	return true
}

// readRaw reads a JSON body to pass through untouched. Empty bodies become
// nil.
func readRaw(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, true
	}
	var raw json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return nil, false
	}
	return raw, true
}

// writeRaw answers with a backend payload inside the data envelope.
func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	httputil.WriteData(w, status, raw)
}
