// Package otp owns the lifecycle of one-time codes: creation, expiry, attempt
// counting and single-use verification.
//
// Per (identity, purpose):
//
//	absent -> unverified(attempts=0) -> verified (terminal)
//	                                 -> expired   -> absent
//	                                 -> exhausted -> absent
//
// Create always collapses any existing state to absent first.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/id"
	"github.com/go-otp-auth/internal/pkg/token"
)

// Issued is a freshly created record together with the plaintext code, which
// exists only in memory and must be delivered out of band.
type Issued struct {
	Record *domain.OTP
	Code   string
}

type Service interface {
	Create(ctx context.Context, identity string, purpose domain.OTPPurpose, expiry time.Duration) (*Issued, error)
	Verify(ctx context.Context, identity, code string, purpose domain.OTPPurpose) (*domain.OTP, error)
	Discard(ctx context.Context, rec *domain.OTP) error
}

// Store persists OTP records. Put replaces whatever record the (identity, purpose)
// pair holds. Delete and RecordAttempt only touch the record version named by
// otp_id; RecordAttempt must also fail with domain.ErrConflict when attempts no
// longer equals rec.Attempts or the record is already verified.
type Store interface {
	Put(ctx context.Context, rec *domain.OTP) error
	Get(ctx context.Context, identity string, purpose domain.OTPPurpose) (*domain.OTP, error)
	Delete(ctx context.Context, identity string, purpose domain.OTPPurpose, otpID string) error
	RecordAttempt(ctx context.Context, rec *domain.OTP, verified bool) error
}

type service struct {
	store       Store
	maxAttempts int
	codeLength  int
	now         func() time.Time
}

type ServiceDeps struct {
	Store Store
	// MaxAttempts defaults to domain.MaxOTPAttempts.
	MaxAttempts int
	// CodeLength defaults to domain.OTPCodeLength.
	CodeLength int
	Now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:       deps.Store,
		maxAttempts: deps.MaxAttempts,
		codeLength:  deps.CodeLength,
		now:         deps.Now,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = domain.MaxOTPAttempts
	}
	if s.codeLength <= 0 {
		s.codeLength = domain.OTPCodeLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Create(ctx context.Context, identity string, purpose domain.OTPPurpose, expiry time.Duration) (*Issued, error) {
	code, err := token.NewNumericCode(s.codeLength)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(expiry)
	rec := &domain.OTP{
		Identity:  identity,
		Purpose:   purpose,
		OTPID:     id.New(),
		CodeHash:  token.Hash(code),
		Attempts:  0,
		Verified:  false,
		ExpiresAt: expiresAt,
		TTL:       expiresAt.Unix(),
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}
	return &Issued{Record: rec, Code: code}, nil
}

func (s *service) Verify(ctx context.Context, identity, code string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	rec, err := s.store.Get(ctx, identity, purpose)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.OTPError{Reason: domain.OTPNotFound}
	}
	if err != nil {
		return nil, err
	}
	if rec.Verified {
		return nil, &domain.OTPError{Reason: domain.OTPNotFound}
	}

	if rec.Expired(s.now()) {
		s.drop(ctx, rec, "expired")
		return nil, &domain.OTPError{Reason: domain.OTPExpired}
	}
	if rec.Attempts >= s.maxAttempts {
		s.drop(ctx, rec, "attempts exhausted")
		return nil, &domain.OTPError{Reason: domain.OTPTooManyAttempts}
	}

	if !token.Matches(code, rec.CodeHash) {
		if err := s.store.RecordAttempt(ctx, rec, false); err != nil {
			return nil, attemptErr(err)
		}
		remaining := s.maxAttempts - (rec.Attempts + 1)
		return nil, &domain.OTPError{Reason: domain.OTPInvalid, AttemptsRemaining: &remaining}
	}

	if err := s.store.RecordAttempt(ctx, rec, true); err != nil {
		return nil, attemptErr(err)
	}
	rec.Attempts++
	rec.Verified = true
	return rec, nil
}

func (s *service) Discard(ctx context.Context, rec *domain.OTP) error {
	return s.store.Delete(ctx, rec.Identity, rec.Purpose, rec.OTPID)
}

// drop deletes a record that can no longer be used. Failures are logged only:
// the TTL reaper removes the record eventually and callers still get the OTP error.
func (s *service) drop(ctx context.Context, rec *domain.OTP, reason string) {
	if err := s.store.Delete(ctx, rec.Identity, rec.Purpose, rec.OTPID); err != nil {
		slog.Warn("failed to delete otp record", "identity", rec.Identity, "purpose", rec.Purpose, "reason", reason, "err", err)
	}
}

func attemptErr(err error) error {
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("verification already in progress, retry: %w", domain.ErrConflict)
	}
	return fmt.Errorf("record otp attempt: %w", err)
}
