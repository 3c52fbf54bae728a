// Package guard decides whether a portal page may render for the current
// session. Decisions are pure; the middleware only applies them.
package guard

import (
	"net/http"
	"net/url"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httputil"
)

// Paths the guards redirect to.
const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	DashboardPath = "/dashboard"
)

// Action is what a guard tells the router to do.
type Action int

const (
	// Render serves the requested page.
	Render Action = iota
	// Loading means the session has not resolved yet.
	Loading
	// Redirect sends the user to Decision.Location.
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is a guard's verdict. From carries the originally requested
// location on redirects to the login page.
type Decision struct {
	Action   Action
	Location string
	From     string
}

// IsGuestOnly reports whether path is a page only signed-out users see.
func IsGuestOnly(path string) bool {
	return path == LoginPath || path == RegisterPath
}

// RequireAuthenticated guards protected pages.
func RequireAuthenticated(st session.State, requested string) Decision {
	if !st.IsInitialized || st.IsLoading {
		return Decision{Action: Loading}
	}
	if !st.IsAuthenticated {
		return Decision{Action: Redirect, Location: LoginPath, From: requested}
	}
	return Decision{Action: Render}
}

// RequireUnauthenticated guards the login and register pages.
func RequireUnauthenticated(st session.State, path string) Decision {
	if !st.IsInitialized || st.IsLoading {
		return Decision{Action: Loading}
	}
	if st.IsAuthenticated && IsGuestOnly(path) {
		return Decision{Action: Redirect, Location: DashboardPath}
	}
	return Decision{Action: Render}
}

// StateReader exposes the current session state.
type StateReader interface {
	State() session.State
}

// Authenticated is middleware applying RequireAuthenticated.
func Authenticated(reader StateReader) func(http.Handler) http.Handler {
	return guardWith(reader, func(st session.State, r *http.Request) Decision {
		return RequireAuthenticated(st, r.URL.RequestURI())
	})
}

// Unauthenticated is middleware applying RequireUnauthenticated.
func Unauthenticated(reader StateReader) func(http.Handler) http.Handler {
	return guardWith(reader, func(st session.State, r *http.Request) Decision {
		return RequireUnauthenticated(st, r.URL.Path)
	})
}

func guardWith(reader StateReader, decide func(session.State, *http.Request) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := decide(reader.State(), r)
			switch d.Action {
			case Loading:
				WriteLoading(w)
			case Redirect:
				http.Redirect(w, r, d.Target(), http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Target returns the redirect URL, with ?next= when there is a From.
func (d Decision) Target() string {
	if d.From == "" || d.From == d.Location {
		return d.Location
	}
	return d.Location + "?" + url.Values{"next": {d.From}}.Encode()
}

// WriteLoading answers a request that arrived before the session resolved.
func WriteLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
}
