package domain

import (
	"fmt"
	"time"
)

// MaxOTPAttempts is the number of checked comparisons a single code allows,
// counting the final successful one.
const MaxOTPAttempts = 5

// OTPCodeLength is the number of decimal digits in a generated code.
const OTPCodeLength = 6

// OTPPurpose keeps a code issued for one flow from being replayed into another.
type OTPPurpose string

const (
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
	OTPPurposePasswordReset     OTPPurpose = "password_reset"
)

// ParseOTPPurpose validates a purpose tag received from a client.
func ParseOTPPurpose(s string) (OTPPurpose, error) {
	switch p := OTPPurpose(s); p {
	case OTPPurposeEmailVerification, OTPPurposePasswordReset:
		return p, nil
	}
	return "", fmt.Errorf("unknown purpose %q: %w", s, ErrBadRequest)
}

// OTP is a one-time code record.
// PK: identity, SK: purpose. A (identity, purpose) pair holds at most one record,
// so creating a new code replaces whatever was there.
// TTL is a Unix timestamp used as DynamoDB TTL.
type OTP struct {
	Identity  string     `json:"identity" dynamodbav:"identity"`
	Purpose   OTPPurpose `json:"purpose" dynamodbav:"purpose"`
	OTPID     string     `json:"id" dynamodbav:"otp_id"`
	CodeHash  string     `json:"-" dynamodbav:"code_hash"`
	Attempts  int        `json:"attempts" dynamodbav:"attempts"`
	Verified  bool       `json:"verified" dynamodbav:"verified"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	TTL       int64      `json:"-" dynamodbav:"ttl"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the record is no longer usable at now.
func (o *OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
