// Package auth orchestrates the account flows: email signup with code
// verification, password login, code resend, forgotten-password recovery and
// Google sign-in. Codes come from the otp package, throttling from ratelimit.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-otp-auth/internal/application/otp"
	"github.com/go-otp-auth/internal/application/ratelimit"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/infrastructure/google"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/go-otp-auth/internal/infrastructure/sns"
	"github.com/go-otp-auth/internal/pkg/id"
	"github.com/go-otp-auth/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// Rate-limited operations.
const (
	opSignup = "signup"
	opLogin  = "login"
	opForgot = "forgot"
	opResend = "resend"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldName                = "name"
	fieldPasswordHash        = "password_hash"
	fieldAuthProvider        = "auth_provider"
	fieldGoogleSub           = "google_sub"
	fieldIsEmailVerified     = "is_email_verified"
	fieldEmailVerifiedAt     = "email_verified_at"
	fieldLastLoginAt         = "last_login_at"
	fieldPasswordResetAt     = "password_reset_at"
	fieldFailedLoginAttempts = "failed_login_attempts"
	fieldLockedUntil         = "locked_until"
)

const msgInvalidCredentials = "invalid email or password"

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type SignupVerifyRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
	Code     string `json:"code" validate:"required,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResendRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ForgotPasswordVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric"`
}

type ResetPasswordRequest struct {
	ResetToken  string `json:"resetToken" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// CodeSent reports a code that was delivered. ExpiresIn is in seconds.
type CodeSent struct {
	Email     string `json:"email"`
	ExpiresIn int    `json:"expiresIn"`
}

// AuthResult is a session token and the user it was issued for.
type AuthResult struct {
	Token string
	User  *domain.User
}

// ResetCredential authorizes exactly one password reset. ExpiresIn is in seconds.
type ResetCredential struct {
	ResetToken string `json:"resetToken"`
	ExpiresIn  int    `json:"expiresIn"`
}

type Service interface {
	RequestSignupCode(ctx context.Context, req SignupRequest) (*CodeSent, error)
	VerifySignupCode(ctx context.Context, req SignupVerifyRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	ResendCode(ctx context.Context, req ResendRequest) (*CodeSent, error)
	RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) (*CodeSent, error)
	VerifyPasswordReset(ctx context.Context, req ForgotPasswordVerifyRequest) (*ResetCredential, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	LoginWithGoogle(ctx context.Context, req GoogleLoginRequest) (*AuthResult, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)
}

type tokenIssuer interface {
	Sign(u *domain.User) (string, error)
	SignPurpose(userID, email, purpose string, ttl time.Duration) (string, error)
	Verify(token, purpose string) (*jwtinfra.Claims, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Identity, error)
}

type service struct {
	users    userStore
	otps     otp.Service
	limiter  ratelimit.Limiter
	mailer   smtp.Mailer
	tokens   tokenIssuer
	google   googleVerifier
	events   sns.EventPublisher
	policy   Policy
	now      func() time.Time
	hashCost int
}

// Policy holds the tunable limits of the flows.
type Policy struct {
	OTPExpiry           time.Duration
	ResetTokenExpiry    time.Duration
	RateLimits          config.RateLimits
	LockoutThreshold    int
	LockoutDuration     time.Duration
	AllowedEmailDomains []string
}

// PolicyFromConfig extracts the flow policy from cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		OTPExpiry:           cfg.OTPExpiry,
		ResetTokenExpiry:    cfg.ResetTokenExpiry,
		RateLimits:          cfg.RateLimits,
		LockoutThreshold:    cfg.LoginLockoutThreshold,
		LockoutDuration:     cfg.LoginLockoutDuration,
		AllowedEmailDomains: cfg.AllowedEmailDomains,
	}
}

type ServiceDeps struct {
	UserRepo       userStore
	OTPs           otp.Service
	Limiter        ratelimit.Limiter
	Mailer         smtp.Mailer
	TokenIssuer    tokenIssuer
	GoogleVerifier googleVerifier
	// Events defaults to sns.Discard.
	Events sns.EventPublisher
	Policy Policy
	Now    func() time.Time
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:    deps.UserRepo,
		otps:     deps.OTPs,
		limiter:  deps.Limiter,
		mailer:   deps.Mailer,
		tokens:   deps.TokenIssuer,
		google:   deps.GoogleVerifier,
		events:   deps.Events,
		policy:   deps.Policy,
		now:      deps.Now,
		hashCost: deps.HashCost,
	}
	if s.events == nil {
		s.events = sns.Discard{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hashCost == 0 {
		s.hashCost = bcrypt.DefaultCost
	}
	return s
}

func (s *service) RequestSignupCode(ctx context.Context, req SignupRequest) (*CodeSent, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	if !validate.EmailDomainAllowed(email, s.policy.AllowedEmailDomains) {
		return nil, fmt.Errorf("email domain is not allowed: %w", domain.ErrBadRequest)
	}
	if err := s.limit(ctx, opSignup, s.policy.RateLimits.Signup, email); err != nil {
		return nil, err
	}

	existing, err := s.signupTarget(ctx, email)
	if err != nil {
		return nil, err
	}
	sent, err := s.sendCode(ctx, email, req.Name, domain.OTPPurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	// The pending row is only written once the code has been delivered.
	if err := s.savePending(ctx, existing, req.Name, email, req.Password); err != nil {
		return nil, err
	}
	return sent, nil
}

// signupTarget returns the unverified row registered for email, nil when there is
// none, or the error that blocks signing up with the address.
func (s *service) signupTarget(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	if u.IsEmailVerified {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	return u, nil
}

// savePending records the unverified account so login can steer it back to verification.
func (s *service) savePending(ctx context.Context, existing *domain.User, name, email, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if existing == nil {
		now := s.now().UTC()
		err := s.users.Create(ctx, &domain.User{
			UserID:       id.New(),
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Role:         domain.RoleUser,
			AuthProvider: domain.AuthProviderLocal,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		// A concurrent signup claimed the email first; update its row instead.
		if existing, err = s.signupTarget(ctx, email); err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
	}
	return s.users.Update(ctx, existing.UserID, map[string]interface{}{
		fieldName:         name,
		fieldPasswordHash: hash,
	})
}

// signupOutcome is decided by the lookup made after the code verifies.
type signupOutcome int

const (
	signupCreateNew signupOutcome = iota
	signupUpdateExisting
)

func (s *service) VerifySignupCode(ctx context.Context, req SignupVerifyRequest) (*AuthResult, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	if _, err := s.otps.Verify(ctx, email, req.Code, domain.OTPPurposeEmailVerification); err != nil {
		return nil, err
	}

	existing, err := s.signupTarget(ctx, email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	u, err := s.completeSignup(ctx, existing, req.Name, email, hash, now)
	if existing == nil && errors.Is(err, domain.ErrConflict) {
		// Another request registered the email between lookup and create.
		if existing, err = s.signupTarget(ctx, email); err == nil {
			if existing == nil {
				err = fmt.Errorf("email already registered: %w", domain.ErrConflict)
			} else {
				u, err = s.completeSignup(ctx, existing, req.Name, email, hash, now)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventUserVerified, u)
	return s.session(u)
}

func (s *service) completeSignup(ctx context.Context, existing *domain.User, name, email, hash string, now time.Time) (*domain.User, error) {
	outcome := signupCreateNew
	if existing != nil {
		outcome = signupUpdateExisting
	}

	switch outcome {
	case signupUpdateExisting:
		if err := s.users.Update(ctx, existing.UserID, map[string]interface{}{
			fieldName:            name,
			fieldPasswordHash:    hash,
			fieldIsEmailVerified: true,
			fieldEmailVerifiedAt: now,
			fieldLastLoginAt:     now,
		}); err != nil {
			return nil, err
		}
		u := *existing
		u.Name = name
		u.PasswordHash = hash
		u.IsEmailVerified = true
		u.EmailVerifiedAt = &now
		u.LastLoginAt = &now
		return &u, nil
	default:
		u := &domain.User{
			UserID:          id.New(),
			Name:            name,
			Email:           email,
			PasswordHash:    hash,
			Role:            domain.RoleUser,
			AuthProvider:    domain.AuthProviderLocal,
			IsEmailVerified: true,
			EmailVerifiedAt: &now,
			LastLoginAt:     &now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	if err := s.limit(ctx, opLogin, s.policy.RateLimits.Login, email); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", msgInvalidCredentials, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	now := s.now()
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	if u.Locked(now) {
		return nil, fmt.Errorf("account temporarily locked after repeated failed logins: %w", domain.ErrForbidden)
	}
	if !u.IsEmailVerified {
		sent, err := s.sendCode(ctx, email, u.Name, domain.OTPPurposeEmailVerification)
		if err != nil {
			return nil, err
		}
		return nil, &domain.VerificationRequiredError{
			Email:     email,
			ExpiresIn: time.Duration(sent.ExpiresIn) * time.Second,
		}
	}
	if !u.HasPassword() {
		return nil, fmt.Errorf("%s: %w", msgInvalidCredentials, domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedLogin(ctx, u, now)
		return nil, fmt.Errorf("%s: %w", msgInvalidCredentials, domain.ErrUnauthorized)
	}

	ts := now.UTC()
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{
		fieldLastLoginAt:         ts,
		fieldFailedLoginAttempts: 0,
		fieldLockedUntil:         nil,
	}); err != nil {
		return nil, err
	}
	u.LastLoginAt = &ts
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return s.session(u)
}

// recordFailedLogin counts a wrong password and locks the account at the threshold.
// Bookkeeping failures are logged; the caller still gets the credential error.
func (s *service) recordFailedLogin(ctx context.Context, u *domain.User, now time.Time) {
	if s.policy.LockoutThreshold <= 0 {
		return
	}
	n, err := s.users.IncrementFailedLogins(ctx, u.UserID)
	if err != nil {
		slog.Warn("failed to record failed login", "user_id", u.UserID, "err", err)
		return
	}
	if n < s.policy.LockoutThreshold {
		return
	}
	until := now.UTC().Add(s.policy.LockoutDuration)
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{
		fieldLockedUntil:         until,
		fieldFailedLoginAttempts: 0,
	}); err != nil {
		slog.Warn("failed to lock account", "user_id", u.UserID, "err", err)
		return
	}
	slog.Info("account locked", "user_id", u.UserID, "until", until)
}

func (s *service) ResendCode(ctx context.Context, req ResendRequest) (*CodeSent, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	purpose, err := domain.ParseOTPPurpose(req.Purpose)
	if err != nil {
		return nil, err
	}
	email := req.Email
	if err := s.limit(ctx, opResend, s.policy.RateLimits.Resend, email); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no account found for this email: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	if purpose == domain.OTPPurposeEmailVerification && u.IsEmailVerified {
		return nil, fmt.Errorf("email already verified: %w", domain.ErrConflict)
	}
	return s.sendCode(ctx, email, u.Name, purpose)
}

func (s *service) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) (*CodeSent, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	if err := s.limit(ctx, opForgot, s.policy.RateLimits.Forgot, email); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no account found for this email: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	return s.sendCode(ctx, email, u.Name, domain.OTPPurposePasswordReset)
}

func (s *service) VerifyPasswordReset(ctx context.Context, req ForgotPasswordVerifyRequest) (*ResetCredential, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	if _, err := s.otps.Verify(ctx, email, req.Code, domain.OTPPurposePasswordReset); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.SignPurpose(u.UserID, email, jwtinfra.PurposePasswordReset, s.policy.ResetTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign reset token: %w", err)
	}
	return &ResetCredential{ResetToken: tok, ExpiresIn: int(s.policy.ResetTokenExpiry / time.Second)}, nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	claims, err := s.tokens.Verify(req.ResetToken, jwtinfra.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("invalid or expired reset token: %w", domain.ErrUnauthorized)
	}
	if err := validate.Password(req.NewPassword); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	u, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(claims.Email))
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("invalid or expired reset token: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return err
	}
	if u.UserID != claims.UserID {
		return fmt.Errorf("invalid or expired reset token: %w", domain.ErrUnauthorized)
	}
	if u.IsDeleted {
		return fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	// iat has second precision, so a token issued in the same second as the last
	// reset counts as used.
	if u.PasswordResetAt != nil && claims.IssuedAt != nil &&
		!claims.IssuedAt.Time.After(u.PasswordResetAt.Truncate(time.Second)) {
		return fmt.Errorf("reset token already used: %w", domain.ErrUnauthorized)
	}

	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{
		fieldPasswordHash:        hash,
		fieldFailedLoginAttempts: 0,
		fieldLockedUntil:         nil,
		fieldPasswordResetAt:     s.now().UTC(),
	}); err != nil {
		return err
	}
	s.publish(ctx, domain.EventPasswordReset, u)
	return nil
}

func (s *service) LoginWithGoogle(ctx context.Context, req GoogleLoginRequest) (*AuthResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	gid, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	if !gid.EmailVerified || gid.Email == "" {
		return nil, fmt.Errorf("google account email is not verified: %w", domain.ErrUnauthorized)
	}
	email := domain.NormalizeEmail(gid.Email)
	now := s.now().UTC()

	u, err := s.users.GetByGoogleSub(ctx, gid.Sub)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = s.linkOrCreateGoogleUser(ctx, gid, email, now)
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}

	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{fieldLastLoginAt: now}); err != nil {
		return nil, err
	}
	u.LastLoginAt = &now
	return s.session(u)
}

func (s *service) linkOrCreateGoogleUser(ctx context.Context, gid *google.Identity, email string, now time.Time) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return s.linkGoogle(ctx, u, gid, now)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if !validate.EmailDomainAllowed(email, s.policy.AllowedEmailDomains) {
		return nil, fmt.Errorf("email domain is not allowed: %w", domain.ErrForbidden)
	}
	name := gid.Name
	if name == "" {
		name = email
	}
	u = &domain.User{
		UserID:          id.New(),
		Name:            name,
		Email:           email,
		Role:            domain.RoleUser,
		AuthProvider:    domain.AuthProviderGoogle,
		GoogleSub:       gid.Sub,
		IsEmailVerified: true,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.users.Create(ctx, u)
	if errors.Is(err, domain.ErrConflict) {
		// Another request registered the email between lookup and create.
		if u, err = s.users.GetByEmail(ctx, email); err != nil {
			return nil, err
		}
		return s.linkGoogle(ctx, u, gid, now)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventUserSignedUp, u)
	return u, nil
}

// linkGoogle attaches the Google subject to an account already registered for the email.
func (s *service) linkGoogle(ctx context.Context, u *domain.User, gid *google.Identity, now time.Time) (*domain.User, error) {
	if u.IsDeleted {
		return u, nil
	}
	updates := map[string]interface{}{fieldGoogleSub: gid.Sub}
	if !u.IsEmailVerified {
		// Google attests the address; the local password was never proven, so drop it.
		updates[fieldIsEmailVerified] = true
		updates[fieldEmailVerifiedAt] = now
		updates[fieldPasswordHash] = ""
		updates[fieldAuthProvider] = domain.AuthProviderGoogle
		u.IsEmailVerified = true
		u.EmailVerifiedAt = &now
		u.PasswordHash = ""
		u.AuthProvider = domain.AuthProviderGoogle
	}
	if err := s.users.Update(ctx, u.UserID, updates); err != nil {
		return nil, err
	}
	u.GoogleSub = gid.Sub
	s.publish(ctx, domain.EventGoogleLinked, u)
	return u, nil
}

func (s *service) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session user no longer exists: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("account has been deactivated: %w", domain.ErrForbidden)
	}
	return u, nil
}

// limit consumes one call from the operation's window for email. It fails closed
// when the counter store is unreachable.
func (s *service) limit(ctx context.Context, op string, w config.Window, email string) error {
	res, err := s.limiter.Check(ctx, ratelimit.Key(op, email), w.Max, w.Period)
	if err != nil {
		slog.Error("rate limiter unavailable", "op", op, "err", err)
		return fmt.Errorf("rate limiter unavailable: %w", domain.ErrUnavailable)
	}
	if !res.Allowed {
		slog.Info("rate limited", "op", op, "email", email, "reset_in", res.ResetIn)
		return &domain.RateLimitError{RetryAfter: res.ResetIn}
	}
	return nil
}

// sendCode issues a code and emails it. If delivery fails the code is discarded
// so no undeliverable record is left behind.
func (s *service) sendCode(ctx context.Context, email, name string, purpose domain.OTPPurpose) (*CodeSent, error) {
	issued, err := s.otps.Create(ctx, email, purpose, s.policy.OTPExpiry)
	if err != nil {
		return nil, err
	}

	send := s.mailer.SendVerificationCode
	if purpose == domain.OTPPurposePasswordReset {
		send = s.mailer.SendPasswordResetCode
	}
	if err := send(email, name, issued.Code, s.policy.OTPExpiry); err != nil {
		slog.Error("failed to send code email", "email", email, "purpose", purpose, "err", err)
		if derr := s.otps.Discard(ctx, issued.Record); derr != nil {
			slog.Error("failed to discard undelivered otp", "email", email, "purpose", purpose, "err", derr)
		}
		return nil, fmt.Errorf("failed to send verification email: %w", domain.ErrUnavailable)
	}
	return &CodeSent{Email: email, ExpiresIn: int(s.policy.OTPExpiry / time.Second)}, nil
}

func (s *service) session(u *domain.User) (*AuthResult, error) {
	tok, err := s.tokens.Sign(u)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &AuthResult{Token: tok, User: u}, nil
}

func (s *service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// publish is best-effort: a lost event never fails the flow that produced it.
func (s *service) publish(ctx context.Context, eventType string, u *domain.User) {
	ev := domain.AuthEvent{Type: eventType, UserID: u.UserID, Email: u.Email, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish auth event", "type", eventType, "user_id", u.UserID, "err", err)
	}
}
