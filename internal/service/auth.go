package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/validator"
)

// AuthBackend is the subset of the backend auth endpoints the flows call.
type AuthBackend interface {
	Login(ctx context.Context, req apiclient.LoginRequest) (*apiclient.AuthResult, error)
	Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, fields map[string]any) (*domain.User, error)
	ChangePassword(ctx context.Context, req apiclient.ChangePasswordRequest) error
	CheckReferral(ctx context.Context, code string) (*apiclient.ReferralInfo, error)
}

// SessionWriter is the session surface the flows mutate.
type SessionWriter interface {
	Login(ctx context.Context, u *domain.User, pair domain.TokenPair) error
	Logout(ctx context.Context) error
	UpdateUser(ctx context.Context, u *domain.User) error
}

// TokenReader reads stored credentials.
type TokenReader interface {
	Get(ctx context.Context, kind credential.Kind) (string, bool, error)
}

// AuthService implements the login, registration, logout and profile flows.
type AuthService struct {
	backend AuthBackend
	session SessionWriter
	tokens  TokenReader
	logger  *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(backend AuthBackend, session SessionWriter, tokens TokenReader, logger *slog.Logger) *AuthService {
	return &AuthService{
		backend: backend,
		session: session,
		tokens:  tokens,
		logger:  logger,
	}
}

// LoginInput holds the login form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput holds the registration form.
type RegisterInput struct {
	Username        string `json:"username" validate:"omitempty,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=150"`
	LastName        string `json:"last_name" validate:"required,max=150"`
	UserType        string `json:"user_type" validate:"required,signup_role"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,max=20"`
	ReferralCode    string `json:"referral_code" validate:"omitempty,max=32"`
}

// UpdateProfileInput holds the editable profile fields. Nil fields are left
// unchanged.
type UpdateProfileInput struct {
	FirstName   *string `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name" validate:"omitempty,max=150"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
}

// ChangePasswordInput holds the change-password form.
type ChangePasswordInput struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8,nefield=OldPassword"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

// Login authenticates against the backend and signs the session in.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	res, err := s.backend.Login(ctx, apiclient.LoginRequest{Email: input.Email, Password: input.Password})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.session.Login(ctx, res.User, res.Tokens); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.Int("user_id", res.User.ID),
		slog.String("user_type", res.User.UserType),
	)
	return res.User, nil
}

// Register creates an account and signs the session in with the returned
// credentials.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	res, err := s.backend.Register(ctx, apiclient.RegisterRequest{
		Username:        input.Username,
		Email:           input.Email,
		Password:        input.Password,
		PasswordConfirm: input.PasswordConfirm,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		UserType:        input.UserType,
		PhoneNumber:     input.PhoneNumber,
		ReferralCode:    input.ReferralCode,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := s.session.Login(ctx, res.User, res.Tokens); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int("user_id", res.User.ID),
		slog.String("user_type", res.User.UserType),
		slog.Bool("referred", input.ReferralCode != ""),
	)
	return res.User, nil
}

// Logout revokes the refresh token on the backend when one is stored, then
// signs the session out. The local sign-out happens even when the backend
// call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	refresh, ok, err := s.tokens.Get(ctx, credential.Refresh)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "read refresh token for logout", slog.String("error", err.Error()))
	case ok:
		if err := s.backend.Logout(ctx, refresh); err != nil {
			s.logger.WarnContext(ctx, "backend logout failed",
				slog.String("error", err.Error()),
				slog.String("kind", apperrors.Classify(err).String()),
			)
		}
	}

	if err := s.session.Logout(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user logged out")
	return nil
}

// Profile reloads the signed-in user from the backend and stores the fresh
// identity in the session.
func (s *AuthService) Profile(ctx context.Context) (*domain.User, error) {
	u, err := s.backend.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := s.session.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile sends the changed fields and replaces the session identity
// with the backend's answer.
func (s *AuthService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	fields := input.fields()
	if len(fields) == 0 {
		return nil, apperrors.InvalidInput("no profile fields to update")
	}

	u, err := s.backend.UpdateProfile(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := s.session.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.Int("user_id", u.ID),
		slog.Int("fields", len(fields)),
	)
	return u, nil
}

// ChangePassword changes the signed-in user's password on the backend.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	if err := validator.Validate(input); err != nil {
		return err
	}

	err := s.backend.ChangePassword(ctx, apiclient.ChangePasswordRequest{
		OldPassword:        input.OldPassword,
		NewPassword:        input.NewPassword,
		NewPasswordConfirm: input.NewPasswordConfirm,
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.logger.InfoContext(ctx, "password changed")
	return nil
}

// CheckReferral validates a referral code before registration.
func (s *AuthService) CheckReferral(ctx context.Context, code string) (*apiclient.ReferralInfo, error) {
	if code == "" {
		return nil, apperrors.InvalidInput("referral code is required")
	}
	info, err := s.backend.CheckReferral(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check referral: %w", err)
	}
	return info, nil
}

func (in UpdateProfileInput) fields() map[string]any {
	fields := make(map[string]any, 4)
	if in.FirstName != nil {
		fields["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		fields["last_name"] = *in.LastName
	}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.PhoneNumber != nil {
		fields["phone_number"] = *in.PhoneNumber
	}
	return fields
}
