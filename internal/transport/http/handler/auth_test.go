package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) codeSent(args mock.Arguments) (*auth.CodeSent, error) {
	if c, _ := args.Get(0).(*auth.CodeSent); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) authResult(args mock.Arguments) (*auth.AuthResult, error) {
	if a, _ := args.Get(0).(*auth.AuthResult); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) RequestSignupCode(ctx context.Context, req auth.SignupRequest) (*auth.CodeSent, error) {
	return m.codeSent(m.Called(ctx, req))
}

func (m *mockAuthSvc) VerifySignupCode(ctx context.Context, req auth.SignupVerifyRequest) (*auth.AuthResult, error) {
	return m.authResult(m.Called(ctx, req))
}

func (m *mockAuthSvc) Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResult, error) {
	return m.authResult(m.Called(ctx, req))
}

func (m *mockAuthSvc) ResendCode(ctx context.Context, req auth.ResendRequest) (*auth.CodeSent, error) {
	return m.codeSent(m.Called(ctx, req))
}

func (m *mockAuthSvc) RequestPasswordReset(ctx context.Context, req auth.ForgotPasswordRequest) (*auth.CodeSent, error) {
	return m.codeSent(m.Called(ctx, req))
}

func (m *mockAuthSvc) VerifyPasswordReset(ctx context.Context, req auth.ForgotPasswordVerifyRequest) (*auth.ResetCredential, error) {
	args := m.Called(ctx, req)
	if c, _ := args.Get(0).(*auth.ResetCredential); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) ResetPassword(ctx context.Context, req auth.ResetPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockAuthSvc) LoginWithGoogle(ctx context.Context, req auth.GoogleLoginRequest) (*auth.AuthResult, error) {
	return m.authResult(m.Called(ctx, req))
}

func (m *mockAuthSvc) Me(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func jsonReq(t *testing.T, target string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

// --- tests ---

func TestSignupRequestCode_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signup/request-code", bytes.NewBufferString("not-json"))
	rr := httptest.NewRecorder()
	h.SignupRequestCode(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignupRequestCode_HappyPath(t *testing.T) {
	svc := &mockAuthSvc{}
	req := auth.SignupRequest{Name: "Ann", Email: "ann@example.com", Password: "Str0ng!pass"}
	svc.On("RequestSignupCode", mock.Anything, req).Return(&auth.CodeSent{Email: "ann@example.com", ExpiresIn: 600}, nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupRequestCode(rr, jsonReq(t, "/v1/auth/signup/request-code", req))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"email":"ann@example.com","expiresIn":600}`, rr.Body.String())
	svc.AssertExpectations(t)
}

func TestSignupRequestCode_RateLimited(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestSignupCode", mock.Anything, mock.Anything).Return(nil, &domain.RateLimitError{RetryAfter: 11*time.Minute + time.Second})

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupRequestCode(rr, jsonReq(t, "/", auth.SignupRequest{}))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.EqualValues(t, 12, decodeBody(t, rr)["retryAfterMinutes"])
}

func TestSignupRequestCode_ConflictStripsSentinel(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestSignupCode", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("email already registered: %w", domain.ErrConflict))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupRequestCode(rr, jsonReq(t, "/", auth.SignupRequest{}))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"email already registered"}`, rr.Body.String())
}

func TestSignupVerifyCode_Created(t *testing.T) {
	svc := &mockAuthSvc{}
	u := &domain.User{UserID: "u1", Name: "Ann", Email: "ann@example.com", Role: domain.RoleUser,
		IsEmailVerified: true, AuthProvider: domain.AuthProviderLocal, PasswordHash: "secret-hash"}
	svc.On("VerifySignupCode", mock.Anything, mock.Anything).Return(&auth.AuthResult{Token: "tok", User: u}, nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupVerifyCode(rr, jsonReq(t, "/", auth.SignupVerifyRequest{Code: "123456"}))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret-hash")
	var resp AuthEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "u1", resp.User.ID)
	assert.True(t, resp.User.IsEmailVerified)
	assert.False(t, resp.User.IsAdmin)
}

func TestSignupVerifyCode_InvalidCodeReportsAttempts(t *testing.T) {
	svc := &mockAuthSvc{}
	remaining := 3
	svc.On("VerifySignupCode", mock.Anything, mock.Anything).
		Return(nil, &domain.OTPError{Reason: domain.OTPInvalid, AttemptsRemaining: &remaining})

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupVerifyCode(rr, jsonReq(t, "/", auth.SignupVerifyRequest{}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 3, body["attemptsRemaining"])
	assert.Contains(t, body["error"], "3 attempts remaining")
}

func TestSignupVerifyCode_ExpiredOmitsAttempts(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifySignupCode", mock.Anything, mock.Anything).Return(nil, &domain.OTPError{Reason: domain.OTPExpired})

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).SignupVerifyCode(rr, jsonReq(t, "/", auth.SignupVerifyRequest{}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, has := decodeBody(t, rr)["attemptsRemaining"]
	assert.False(t, has)
}

func TestLogin_RequiresVerification(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).
		Return(nil, &domain.VerificationRequiredError{Email: "ann@example.com", ExpiresIn: 10 * time.Minute})

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Login(rr, jsonReq(t, "/", auth.LoginRequest{Email: "ann@example.com", Password: "x"}))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["requiresVerification"])
	assert.Equal(t, "ann@example.com", body["email"])
	assert.EqualValues(t, 600, body["expiresIn"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Login(rr, jsonReq(t, "/", auth.LoginRequest{}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"invalid email or password"}`, rr.Body.String())
}

func TestLogin_UnknownErrorIsGeneric500(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, errors.New("dynamodb: ProvisionedThroughputExceeded"))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Login(rr, jsonReq(t, "/", auth.LoginRequest{}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "dynamodb")
}

func TestResendCode_EmailDeliveryFailure(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("ResendCode", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("failed to send verification email: %w", domain.ErrUnavailable))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ResendCode(rr, jsonReq(t, "/", auth.ResendRequest{}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"failed to send verification email"}`, rr.Body.String())
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestPasswordReset", mock.Anything, auth.ForgotPasswordRequest{Email: "nobody@example.com"}).
		Return(nil, fmt.Errorf("no account found for this email: %w", domain.ErrNotFound))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ForgotPasswordRequestCode(rr, jsonReq(t, "/", auth.ForgotPasswordRequest{Email: "nobody@example.com"}))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestForgotPasswordVerify_ReturnsResetToken(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyPasswordReset", mock.Anything, mock.Anything).
		Return(&auth.ResetCredential{ResetToken: "reset-tok", ExpiresIn: 900}, nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ForgotPasswordVerifyCode(rr, jsonReq(t, "/", auth.ForgotPasswordVerifyRequest{}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"resetToken":"reset-tok","expiresIn":900}`, rr.Body.String())
}

func TestResetPassword_HappyPath(t *testing.T) {
	svc := &mockAuthSvc{}
	req := auth.ResetPasswordRequest{ResetToken: "reset-tok", NewPassword: "N3w!password"}
	svc.On("ResetPassword", mock.Anything, req).Return(nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ResetPassword(rr, jsonReq(t, "/", req))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["message"], "reset")
	svc.AssertExpectations(t)
}

func TestGoogle_DomainNotAllowed(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("LoginWithGoogle", mock.Anything, auth.GoogleLoginRequest{IDToken: "id"}).
		Return(nil, fmt.Errorf("email domain is not allowed: %w", domain.ErrForbidden))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Google(rr, jsonReq(t, "/", auth.GoogleLoginRequest{IDToken: "id"}))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMe_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Me(rr, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMe_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockAuthSvc{}
	svc.On("Me", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "ann@example.com", Role: domain.RoleAdmin}, nil)
	h := NewAuthHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/auth/me", "u1", domain.RoleAdmin, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Me), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp UserEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.True(t, resp.User.IsAdmin)
	svc.AssertExpectations(t)
}
