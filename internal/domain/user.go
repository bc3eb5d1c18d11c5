package domain

import (
	"strings"
	"time"
)

const (
	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"
)

type User struct {
	UserID              string     `json:"id" dynamodbav:"user_id"`
	Name                string     `json:"name" dynamodbav:"name"`
	Email               string     `json:"email" dynamodbav:"email"`
	PasswordHash        string     `json:"-" dynamodbav:"password_hash"`
	Role                string     `json:"role" dynamodbav:"role"`
	AuthProvider        string     `json:"auth_provider" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub           string     `json:"-" dynamodbav:"google_sub,omitempty"`
	IsEmailVerified     bool       `json:"is_email_verified" dynamodbav:"is_email_verified"`
	EmailVerifiedAt     *time.Time `json:"email_verified_at,omitempty" dynamodbav:"email_verified_at"`
	IsDeleted           bool       `json:"is_deleted" dynamodbav:"is_deleted"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty" dynamodbav:"last_login_at"`
	PasswordResetAt     *time.Time `json:"password_reset_at,omitempty" dynamodbav:"password_reset_at"`
	FailedLoginAttempts int        `json:"-" dynamodbav:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" dynamodbav:"locked_until"`
	CreatedAt           time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt           time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Locked reports whether a login lockout is still in force at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// HasPassword is false for accounts created through Google sign-in only.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// NormalizeEmail is the identity key used for users, OTP records and rate-limit keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
