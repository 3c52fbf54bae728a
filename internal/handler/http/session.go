package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/guard"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httputil"
)

// SessionReader exposes the current session state.
type SessionReader interface {
	State() session.State
}

// SessionClearer is the forced sign-out.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// TokenReader reads stored credentials.
type TokenReader interface {
	Get(ctx context.Context, kind credential.Kind) (string, bool, error)
}

// SessionHandler serves the session view and the role dashboard.
type SessionHandler struct {
	session SessionReader
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(sess SessionReader, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: sess, logger: logger}
}

// Roles are the role predicates of the current identity.
type Roles struct {
	IsAdmin               bool `json:"isAdmin"`
	IsDoctor              bool `json:"isDoctor"`
	IsPatient             bool `json:"isPatient"`
	HasActiveSubscription bool `json:"hasActiveSubscription"`
}

// SessionView is the body of GET /api/session.
type SessionView struct {
	User            *domain.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	IsInitialized   bool         `json:"isInitialized"`
	Roles           Roles        `json:"roles"`
}

func newSessionView(st session.State) SessionView {
	return SessionView{
		User:            st.User,
		IsAuthenticated: st.IsAuthenticated,
		IsLoading:       st.IsLoading,
		IsInitialized:   st.IsInitialized,
		Roles: Roles{
			IsAdmin:               st.IsAdmin(),
			IsDoctor:              st.IsDoctor(),
			IsPatient:             st.IsPatient(),
			HasActiveSubscription: st.HasActiveSubscription(),
		},
	}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteData(w, http.StatusOK, newSessionView(h.session.State()))
}

// dashboard is the body of GET /dashboard.
type dashboard struct {
	View     string       `json:"view"`
	Greeting string       `json:"greeting"`
	User     *domain.User `json:"user"`
	Roles    Roles        `json:"roles"`
}

// Dashboard handles GET /dashboard
func (h *SessionHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	st := h.session.State()
	if st.User == nil {
		// Signed out between the guard and here.
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	view := newSessionView(st)
	httputil.WriteData(w, http.StatusOK, dashboard{
		View:     domain.DashboardView(st.User),
		Greeting: "Welcome, " + st.User.FullName(),
		User:     st.User,
		Roles:    view.Roles,
	})
}

// DebugHandler exposes credential and session diagnostics.
type DebugHandler struct {
	session SessionReader
	clearer SessionClearer
	tokens  TokenReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewDebugHandler creates a new debug HTTP handler.
func NewDebugHandler(sess SessionReader, clearer SessionClearer, tokens TokenReader, logger *slog.Logger) *DebugHandler {
	return &DebugHandler{session: sess, clearer: clearer, tokens: tokens, logger: logger, now: time.Now}
}

// TokenStatus describes one stored token without revealing it.
type TokenStatus struct {
	Present    bool       `json:"present"`
	Decodable  bool       `json:"decodable"`
	UserID     string     `json:"user_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Expired    bool       `json:"expired"`
	TTLSeconds int64      `json:"ttl_seconds,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// authDebug is the body of GET /debug/auth.
type authDebug struct {
	AccessToken  TokenStatus `json:"access_token"`
	RefreshToken TokenStatus `json:"refresh_token"`
	Session      SessionView `json:"session"`
}

// Auth handles GET /debug/auth
func (h *DebugHandler) Auth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteData(w, http.StatusOK, authDebug{
		AccessToken:  h.tokenStatus(ctx, credential.Access),
		RefreshToken: h.tokenStatus(ctx, credential.Refresh),
		Session:      newSessionView(h.session.State()),
	})
}

// Clear handles POST /debug/auth/clear
func (h *DebugHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.clearer.Clear(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.logger.WarnContext(r.Context(), "session cleared from debug endpoint")
	w.WriteHeader(http.StatusNoContent)
}

func (h *DebugHandler) tokenStatus(ctx context.Context, kind credential.Kind) TokenStatus {
	token, ok, err := h.tokens.Get(ctx, kind)
	if err != nil {
		return TokenStatus{Error: err.Error()}
	}
	if !ok {
		return TokenStatus{}
	}

	st := TokenStatus{Present: true}
	info, err := credential.Inspect(token)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	now := h.now()
	st.Decodable = true
	st.UserID = info.UserID
	if !info.ExpiresAt.IsZero() {
		exp := info.ExpiresAt
		st.ExpiresAt = &exp
		st.Expired = info.Expired(now)
		st.TTLSeconds = int64(info.TTL(now).Seconds())
	}
	return st
}
