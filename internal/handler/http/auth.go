package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/guard"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/service"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httputil"
)

// AuthFlows is the sign-in and profile surface the handlers drive.
// *service.AuthService satisfies it.
type AuthFlows interface {
	Login(ctx context.Context, input service.LoginInput) (*domain.User, error)
	Register(ctx context.Context, input service.RegisterInput) (*domain.User, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, input service.UpdateProfileInput) (*domain.User, error)
	ChangePassword(ctx context.Context, input service.ChangePasswordInput) error
	CheckReferral(ctx context.Context, code string) (*apiclient.ReferralInfo, error)
}

// AuthHandler handles the login, registration and profile pages.
type AuthHandler struct {
	flows  AuthFlows
	logger *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(flows AuthFlows, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{flows: flows, logger: logger}
}

// page describes a guest-only form page.
type page struct {
	Page   string   `json:"page"`
	Fields []string `json:"fields"`
	Next   string   `json:"next,omitempty"`
}

// userResponse is the body of successful auth flows.
type userResponse struct {
	User     *domain.User `json:"user"`
	Redirect string       `json:"redirect,omitempty"`
}

// LoginPage handles GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, page{
		Page:   "login",
		Fields: []string{"email", "password"},
		Next:   r.URL.Query().Get("next"),
	})
}

// RegisterPage handles GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, page{
		Page: "register",
		Fields: []string{
			"username", "email", "password", "password_confirm", "first_name",
			"last_name", "user_type", "phone_number", "referral_code",
		},
	})
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}

	u, err := h.flows.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: u, Redirect: nextLocation(r)})
}

// Register handles POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	u, err := h.flows.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, userResponse{User: u, Redirect: guard.DashboardPath})
}

// CheckReferral handles GET /register/referral/{code}
func (h *AuthHandler) CheckReferral(w http.ResponseWriter, r *http.Request) {
	info, err := h.flows.CheckReferral(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, info)
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Logout(r.Context()); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"redirect": guard.LoginPath})
}

// GetProfile handles GET /profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.flows.Profile(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: u})
}

// UpdateProfile handles PUT /profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}

	u, err := h.flows.UpdateProfile(r.Context(), in)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, userResponse{User: u})
}

// ChangePassword handles POST /profile/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if !decodeJSON(w, r, &in) {
		return
	}

	if err := h.flows.ChangePassword(r.Context(), in); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nextLocation returns the page a signed-in user goes to after login: the
// ?next= the login guard attached when it is a local path, else the
// dashboard.
func nextLocation(r *http.Request) string {
	next := r.URL.Query().Get("next")
	if next == "" || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return guard.DashboardPath
	}
	if guard.IsGuestOnly(next) {
		return guard.DashboardPath
	}
	return next
}
