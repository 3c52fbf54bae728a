package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupForm struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	UserType        string `json:"user_type" validate:"required,signup_role"`
}

type measureForm struct {
	Weight float64 `json:"weight" validate:"gt=0,max=500"`
	Age    int     `json:"age" validate:"gte=1,lte=120"`
	Gender string  `json:"gender" validate:"oneof=male female"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(loginForm{Email: "ada@example.com", Password: "x"}))
}

func TestValidate_UsesJSONNames(t *testing.T) {
	fields := fieldsOf(t, Validate(loginForm{}))

	assert.Equal(t, "is required", fields["email"])
	assert.Equal(t, "is required", fields["password"])
	assert.NotContains(t, fields, "Email")
}

func TestValidate_InvalidEmail(t *testing.T) {
	fields := fieldsOf(t, Validate(loginForm{Email: "not-an-email", Password: "x"}))
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestValidate_PasswordRules(t *testing.T) {
	fields := fieldsOf(t, Validate(signupForm{Password: "short", PasswordConfirm: "other", UserType: "patient"}))

	assert.Equal(t, "must be at least 8 characters", fields["password"])
	assert.Equal(t, "must match Password", fields["password_confirm"])
}

func TestValidate_SignupRole(t *testing.T) {
	for _, role := range []string{"patient", "doctor"} {
		assert.NoError(t, Validate(signupForm{Password: "longenough", PasswordConfirm: "longenough", UserType: role}))
	}

	fields := fieldsOf(t, Validate(signupForm{Password: "longenough", PasswordConfirm: "longenough", UserType: "admin"}))
	assert.Equal(t, "must be one of: patient doctor", fields["user_type"])
}

func TestValidate_NumericRanges(t *testing.T) {
	fields := fieldsOf(t, Validate(measureForm{Weight: 0, Age: 130, Gender: "other"}))

	assert.Equal(t, "must be greater than 0", fields["weight"])
	assert.Equal(t, "must be less than or equal to 120", fields["age"])
	assert.Contains(t, fields["gender"], "one of")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(loginForm{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'email'")
	assert.Contains(t, err.Error(), "is required")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"email":"ada@example.com","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var f loginForm
	require.NoError(t, DecodeAndValidate(req, &f))
	assert.Equal(t, "ada@example.com", f.Email)
	assert.Equal(t, "secret", f.Password)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var f loginForm
	err := DecodeAndValidate(req, &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"bad"}`))

	var f loginForm
	err := DecodeAndValidate(req, &f)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var f loginForm
	err := DecodeAndValidate(req, &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
