package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrUnavailable     = errors.New("unavailable")
)

// OTPFailure names the step of code verification that rejected the attempt.
type OTPFailure string

const (
	OTPNotFound        OTPFailure = "not_found"
	OTPExpired         OTPFailure = "expired"
	OTPTooManyAttempts OTPFailure = "too_many_attempts"
	OTPInvalid         OTPFailure = "invalid"
)

// OTPError is returned by code verification. AttemptsRemaining is only set for OTPInvalid.
type OTPError struct {
	Reason            OTPFailure
	AttemptsRemaining *int
}

func (e *OTPError) Error() string {
	switch e.Reason {
	case OTPNotFound:
		return "verification code not found or already used"
	case OTPExpired:
		return "verification code has expired, request a new one"
	case OTPTooManyAttempts:
		return "too many failed attempts, request a new code"
	default:
		if e.AttemptsRemaining != nil {
			return fmt.Sprintf("invalid verification code, %d attempts remaining", *e.AttemptsRemaining)
		}
		return "invalid verification code"
	}
}

func (e *OTPError) Unwrap() error { return ErrBadRequest }

// RateLimitError reports a rejected call and how long until the window resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

// RetryAfterMinutes rounds the remaining window up to whole minutes, never below one.
func (e *RateLimitError) RetryAfterMinutes() int {
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, try again in %d minute(s)", e.RetryAfterMinutes())
}

func (e *RateLimitError) Unwrap() error { return ErrTooManyRequests }

// VerificationRequiredError is returned by login for accounts whose email is not
// verified yet. A fresh code has already been sent when it is returned.
type VerificationRequiredError struct {
	Email     string
	ExpiresIn time.Duration
}

func (e *VerificationRequiredError) Error() string {
	return "email not verified, a new verification code has been sent"
}

func (e *VerificationRequiredError) Unwrap() error { return ErrForbidden }
