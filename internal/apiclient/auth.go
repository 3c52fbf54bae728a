package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
)

// AuthResult is the login and register response body.
type AuthResult struct {
	Message string           `json:"message,omitempty"`
	User    *domain.User     `json:"user"`
	Tokens  domain.TokenPair `json:"tokens"`
}

// LoginRequest is the login endpoint body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the register endpoint body.
type RegisterRequest struct {
	Username        string `json:"username,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	UserType        string `json:"user_type"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	ReferralCode    string `json:"referral_code,omitempty"`
}

// ChangePasswordRequest is the change-password endpoint body.
type ChangePasswordRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// ReferralInfo describes a valid referral code.
type ReferralInfo struct {
	Valid        bool   `json:"valid"`
	ReferrerName string `json:"referrer_name"`
	ReferrerType string `json:"referrer_type"`
}

type userEnvelope struct {
	User *domain.User `json:"user"`
}

// AuthAPI groups the backend auth endpoints.
type AuthAPI struct{ c *Client }

// Auth returns the auth endpoint group.
func (c *Client) Auth() *AuthAPI { return &AuthAPI{c: c} }

// Login exchanges credentials for a user and a token pair.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	return a.authenticate(ctx, LoginPath, req)
}

// Register creates an account and signs it in.
func (a *AuthAPI) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return a.authenticate(ctx, RegisterPath, req)
}

func (a *AuthAPI) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var out AuthResult
	if err := a.c.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, &out); err != nil {
		return nil, err
	}
	if out.User == nil || out.Tokens.Access == "" || out.Tokens.Refresh == "" {
		return nil, fmt.Errorf("%s: response missing user or tokens", path)
	}
	return &out, nil
}

// Logout revokes the refresh token on the backend.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	return a.c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   LogoutPath,
		Body:   map[string]string{"refresh_token": refreshToken},
	}, nil)
}

// Profile fetches the signed-in user's identity.
func (a *AuthAPI) Profile(ctx context.Context) (*domain.User, error) {
	var out userEnvelope
	if err := a.c.DoJSON(ctx, Request{Method: http.MethodGet, Path: ProfilePath}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%s: response missing user", ProfilePath)
	}
	return out.User, nil
}

// UpdateProfile sends changed profile fields and returns the updated user.
func (a *AuthAPI) UpdateProfile(ctx context.Context, fields map[string]any) (*domain.User, error) {
	var out userEnvelope
	if err := a.c.DoJSON(ctx, Request{Method: http.MethodPut, Path: ProfilePath, Body: fields}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%s: response missing user", ProfilePath)
	}
	return out.User, nil
}

// ChangePassword changes the signed-in user's password.
func (a *AuthAPI) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return a.c.DoJSON(ctx, Request{Method: http.MethodPost, Path: ChangePasswordPath, Body: req}, nil)
}

// CheckReferral looks a referral code up. Unknown codes come back as a 404
// *apperrors.HTTPError.
func (a *AuthAPI) CheckReferral(ctx context.Context, code string) (*ReferralInfo, error) {
	var out ReferralInfo
	path := "/auth/referral/" + url.PathEscape(code) + "/"
	if err := a.c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
