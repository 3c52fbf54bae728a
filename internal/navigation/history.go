// Package navigation tracks where the portal user currently is and records
// navigations the session core forces on them.
package navigation

import (
	"context"
	"net/http"
	"sync"
)

// LoginPath is where forced sign-outs send the user.
const LoginPath = "/login"

const maxForced = 32

type visitKey struct{}

// visit is the per-request navigation record.
type visit struct {
	mu       sync.Mutex
	path     string
	redirect string
}

// History is the portal's location bar. Each inbound portal request is a
// visit; forced navigations are attached to the visit that caused them.
type History struct {
	mu      sync.Mutex
	current string
	forced  []string
}

// NewHistory creates a history positioned at "/".
func NewHistory() *History {
	return &History{current: "/"}
}

// Middleware records every inbound request as the current location.
func (h *History) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.setCurrent(r.URL.Path)
		ctx := context.WithValue(r.Context(), visitKey{}, &visit{path: r.URL.Path})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentPath returns the path of the visit in ctx, or the last visited path
// when ctx carries none.
func (h *History) CurrentPath(ctx context.Context) string {
	if v, ok := ctx.Value(visitKey{}).(*visit); ok {
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.path
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Navigate moves the user to path and records it as the pending redirect of
// the visit in ctx.
func (h *History) Navigate(ctx context.Context, path string) {
	if v, ok := ctx.Value(visitKey{}).(*visit); ok {
		v.mu.Lock()
		v.path = path
		v.redirect = path
		v.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = path
	h.forced = append(h.forced, path)
	if len(h.forced) > maxForced {
		h.forced = h.forced[len(h.forced)-maxForced:]
	}
}

// Forced returns the most recent forced navigations, oldest first.
func (h *History) Forced() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.forced))
	copy(out, h.forced)
	return out
}

func (h *History) setCurrent(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = path
}

// PendingRedirect returns the forced navigation recorded during the visit in
// ctx, if any.
func PendingRedirect(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(visitKey{}).(*visit)
	if !ok {
		return "", false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redirect, v.redirect != ""
}
