package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/validator"
)

// --- Mock Auth Backend ---

type mockAuthBackend struct {
	mock.Mock
}

func (m *mockAuthBackend) Login(ctx context.Context, req apiclient.LoginRequest) (*apiclient.AuthResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.AuthResult), args.Error(1)
}

func (m *mockAuthBackend) Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.AuthResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.AuthResult), args.Error(1)
}

func (m *mockAuthBackend) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *mockAuthBackend) Profile(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuthBackend) UpdateProfile(ctx context.Context, fields map[string]any) (*domain.User, error) {
	args := m.Called(ctx, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuthBackend) ChangePassword(ctx context.Context, req apiclient.ChangePasswordRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockAuthBackend) CheckReferral(ctx context.Context, code string) (*apiclient.ReferralInfo, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.ReferralInfo), args.Error(1)
}

// --- Mock Session ---

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Login(ctx context.Context, u *domain.User, pair domain.TokenPair) error {
	args := m.Called(ctx, u, pair)
	return args.Error(0)
}

func (m *mockSession) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSession) UpdateUser(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

// --- Mock Token Reader ---

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Get(ctx context.Context, kind credential.Kind) (string, bool, error) {
	args := m.Called(ctx, kind)
	return args.String(0), args.Bool(1), args.Error(2)
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*AuthService, *mockAuthBackend, *mockSession, *mockTokens) {
	backend := new(mockAuthBackend)
	sess := new(mockSession)
	tokens := new(mockTokens)
	return NewAuthService(backend, sess, tokens, testLogger()), backend, sess, tokens
}

func testUser() *domain.User {
	return &domain.User{ID: 7, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", UserType: domain.RolePatient}
}

func testPair() domain.TokenPair {
	return domain.TokenPair{Access: "A1", Refresh: "R1"}
}

func strPtr(s string) *string { return &s }

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var valErr *validator.ValidationError
	require.True(t, errors.As(err, &valErr), "expected validation error, got %v", err)
	return valErr.Fields()
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	user := testUser()

	backend.On("Login", ctx, apiclient.LoginRequest{Email: "ada@example.com", Password: "secret"}).
		Return(&apiclient.AuthResult{User: user, Tokens: testPair()}, nil)
	sess.On("Login", ctx, user, testPair()).Return(nil)

	got, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)

	backend.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestLogin_InvalidInput(t *testing.T) {
	svc, backend, sess, _ := newTestService()

	_, err := svc.Login(context.Background(), LoginInput{Email: "not-an-email"})
	require.Error(t, err)

	fields := validationFields(t, err)
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "is required", fields["password"])

	backend.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	sess.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_BackendRejects(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()

	backend.On("Login", ctx, mock.Anything).
		Return(nil, &apperrors.HTTPError{Status: http.StatusBadRequest, Message: "Invalid credentials"})

	_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, apperrors.KindValidation, apperrors.Classify(err))

	sess.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_SessionWriteFails(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	user := testUser()
	writeErr := errors.New("disk full")

	backend.On("Login", ctx, mock.Anything).Return(&apiclient.AuthResult{User: user, Tokens: testPair()}, nil)
	sess.On("Login", ctx, user, testPair()).Return(writeErr)

	_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret"})
	assert.ErrorIs(t, err, writeErr)
}

// --- Register ---

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:           "grace@example.com",
		Password:        "longenough",
		PasswordConfirm: "longenough",
		FirstName:       "Grace",
		LastName:        "Hopper",
		UserType:        domain.RoleDoctor,
		ReferralCode:    "REF123",
	}
}

func TestRegister_Success(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	user := &domain.User{ID: 9, UserType: domain.RoleDoctor}

	backend.On("Register", ctx, mock.MatchedBy(func(req apiclient.RegisterRequest) bool {
		return req.Email == "grace@example.com" &&
			req.PasswordConfirm == "longenough" &&
			req.UserType == domain.RoleDoctor &&
			req.ReferralCode == "REF123"
	})).Return(&apiclient.AuthResult{User: user, Tokens: testPair()}, nil)
	sess.On("Login", ctx, user, testPair()).Return(nil)

	got, err := svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, 9, got.ID)

	backend.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"short password", func(in *RegisterInput) { in.Password, in.PasswordConfirm = "short", "short" }, "password"},
		{"confirmation mismatch", func(in *RegisterInput) { in.PasswordConfirm = "different1" }, "password_confirm"},
		{"admin self signup", func(in *RegisterInput) { in.UserType = domain.RoleAdmin }, "user_type"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = "" }, "first_name"},
		{"bad email", func(in *RegisterInput) { in.Email = "grace" }, "email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, backend, _, _ := newTestService()
			in := validRegisterInput()
			tc.mutate(&in)

			_, err := svc.Register(context.Background(), in)
			require.Error(t, err)
			assert.Contains(t, validationFields(t, err), tc.field)
			backend.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_BackendPayloadPreserved(t *testing.T) {
	svc, backend, _, _ := newTestService()
	ctx := context.Background()
	payload := `{"email":["user with this email already exists."]}`

	backend.On("Register", ctx, mock.Anything).
		Return(nil, &apperrors.HTTPError{Status: http.StatusBadRequest, Payload: []byte(payload)})

	_, err := svc.Register(ctx, validRegisterInput())
	var httpErr *apperrors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.JSONEq(t, payload, string(httpErr.Payload))
}

// --- Logout ---

func TestLogout_RevokesThenSignsOut(t *testing.T) {
	svc, backend, sess, tokens := newTestService()
	ctx := context.Background()

	tokens.On("Get", ctx, credential.Refresh).Return("R1", true, nil)
	backend.On("Logout", ctx, "R1").Return(nil)
	sess.On("Logout", ctx).Return(nil)

	require.NoError(t, svc.Logout(ctx))

	backend.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestLogout_BackendFailureStillSignsOut(t *testing.T) {
	svc, backend, sess, tokens := newTestService()
	ctx := context.Background()

	tokens.On("Get", ctx, credential.Refresh).Return("R1", true, nil)
	backend.On("Logout", ctx, "R1").Return(fmt.Errorf("%w: connection refused", apperrors.ErrNetwork))
	sess.On("Logout", ctx).Return(nil)

	require.NoError(t, svc.Logout(ctx))
	sess.AssertExpectations(t)
}

func TestLogout_NoRefreshTokenSkipsBackend(t *testing.T) {
	svc, backend, sess, tokens := newTestService()
	ctx := context.Background()

	tokens.On("Get", ctx, credential.Refresh).Return("", false, nil)
	sess.On("Logout", ctx).Return(nil)

	require.NoError(t, svc.Logout(ctx))
	backend.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
	sess.AssertExpectations(t)
}

func TestLogout_TokenReadErrorStillSignsOut(t *testing.T) {
	svc, backend, sess, tokens := newTestService()
	ctx := context.Background()

	tokens.On("Get", ctx, credential.Refresh).Return("", false, errors.New("storage offline"))
	sess.On("Logout", ctx).Return(nil)

	require.NoError(t, svc.Logout(ctx))
	backend.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestLogout_SessionErrorReturned(t *testing.T) {
	svc, backend, sess, tokens := newTestService()
	ctx := context.Background()
	clearErr := errors.New("clear failed")

	tokens.On("Get", ctx, credential.Refresh).Return("R1", true, nil)
	backend.On("Logout", ctx, "R1").Return(nil)
	sess.On("Logout", ctx).Return(clearErr)

	assert.ErrorIs(t, svc.Logout(ctx), clearErr)
}

// --- Profile ---

func TestProfile_RefreshesSessionIdentity(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	fresh := testUser()
	fresh.IsVerified = true

	backend.On("Profile", ctx).Return(fresh, nil)
	sess.On("UpdateUser", ctx, fresh).Return(nil)

	got, err := svc.Profile(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	sess.AssertExpectations(t)
}

func TestProfile_RefreshFailurePassesThrough(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	refreshErr := &apperrors.RefreshError{
		Cause:    apperrors.ErrNoRefreshToken,
		Original: &apperrors.HTTPError{Status: http.StatusUnauthorized},
	}

	backend.On("Profile", ctx).Return(nil, refreshErr)

	_, err := svc.Profile(ctx)
	assert.Equal(t, apperrors.KindRefresh, apperrors.Classify(err))
	sess.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything)
}

// --- UpdateProfile ---

func TestUpdateProfile_SendsOnlySetFields(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()
	updated := testUser()
	updated.FirstName = "Augusta"

	backend.On("UpdateProfile", ctx, map[string]any{"first_name": "Augusta"}).Return(updated, nil)
	sess.On("UpdateUser", ctx, updated).Return(nil)

	got, err := svc.UpdateProfile(ctx, UpdateProfileInput{FirstName: strPtr("Augusta")})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)

	backend.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestUpdateProfile_NoFields(t *testing.T) {
	svc, backend, _, _ := newTestService()

	_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	backend.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything)
}

func TestUpdateProfile_InvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{Email: strPtr("nope")})
	assert.Contains(t, validationFields(t, err), "email")
}

func TestUpdateProfile_BackendErrorLeavesSession(t *testing.T) {
	svc, backend, sess, _ := newTestService()
	ctx := context.Background()

	backend.On("UpdateProfile", ctx, mock.Anything).Return(nil, &apperrors.HTTPError{Status: http.StatusInternalServerError})

	_, err := svc.UpdateProfile(ctx, UpdateProfileInput{LastName: strPtr("Byron")})
	assert.ErrorIs(t, err, apperrors.ErrServer)
	sess.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything)
}

// --- ChangePassword ---

func TestChangePassword_Success(t *testing.T) {
	svc, backend, _, _ := newTestService()
	ctx := context.Background()
	in := ChangePasswordInput{OldPassword: "oldpass12", NewPassword: "newpass12", NewPasswordConfirm: "newpass12"}

	backend.On("ChangePassword", ctx, apiclient.ChangePasswordRequest{
		OldPassword: "oldpass12", NewPassword: "newpass12", NewPasswordConfirm: "newpass12",
	}).Return(nil)

	require.NoError(t, svc.ChangePassword(ctx, in))
	backend.AssertExpectations(t)
}

func TestChangePassword_Validation(t *testing.T) {
	svc, backend, _, _ := newTestService()

	err := svc.ChangePassword(context.Background(), ChangePasswordInput{
		OldPassword: "samepass1", NewPassword: "samepass1", NewPasswordConfirm: "samepass1",
	})
	assert.Equal(t, "must differ from OldPassword", validationFields(t, err)["new_password"])

	err = svc.ChangePassword(context.Background(), ChangePasswordInput{
		OldPassword: "oldpass12", NewPassword: "newpass12", NewPasswordConfirm: "newpass13",
	})
	assert.Contains(t, validationFields(t, err), "new_password_confirm")

	backend.AssertNotCalled(t, "ChangePassword", mock.Anything, mock.Anything)
}

// --- CheckReferral ---

func TestCheckReferral(t *testing.T) {
	svc, backend, _, _ := newTestService()
	ctx := context.Background()

	backend.On("CheckReferral", ctx, "REF123").Return(&apiclient.ReferralInfo{Valid: true, ReferrerName: "Dr. Who"}, nil)
	backend.On("CheckReferral", ctx, "NOPE").Return(nil, &apperrors.HTTPError{Status: http.StatusNotFound})

	info, err := svc.CheckReferral(ctx, "REF123")
	require.NoError(t, err)
	assert.True(t, info.Valid)

	_, err = svc.CheckReferral(ctx, "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.CheckReferral(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- With a real session ---

func TestLoginThenLogout_LeavesNoCredentials(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	creds := credential.NewStore(kv)
	mgr := session.NewManager(kv, creds, testLogger())
	backend := new(mockAuthBackend)
	svc := NewAuthService(backend, mgr, creds, testLogger())

	backend.On("Login", ctx, mock.Anything).Return(&apiclient.AuthResult{User: testUser(), Tokens: testPair()}, nil)
	backend.On("Logout", ctx, "R1").Return(nil)

	_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, mgr.State().IsAuthenticated)
	access, ok, err := creds.Get(ctx, credential.Access)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A1", access)

	require.NoError(t, svc.Logout(ctx))
	assert.False(t, mgr.State().IsAuthenticated)
	for _, kind := range []credential.Kind{credential.Access, credential.Refresh} {
		_, ok, err := creds.Get(ctx, kind)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be cleared", kind)
	}
	backend.AssertExpectations(t)
}
