package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-otp-auth/internal/domain"
)

// MessageEnvelope is the generic response wrapper. The optional fields are only
// set for the errors that carry them.
type MessageEnvelope struct {
	Message              string `json:"message,omitempty"`
	Error                string `json:"error,omitempty"`
	AttemptsRemaining    *int   `json:"attemptsRemaining,omitempty"`
	RetryAfterMinutes    int    `json:"retryAfterMinutes,omitempty"`
	RequiresVerification bool   `json:"requiresVerification,omitempty"`
	Email                string `json:"email,omitempty"`
	ExpiresIn            int    `json:"expiresIn,omitempty"`
}

// SafeUser is the sanitized user view returned to clients.
type SafeUser struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	IsAdmin         bool       `json:"isAdmin"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	AuthProvider    string     `json:"authProvider"`
	LastLoginAt     *time.Time `json:"lastLoginAt"`
	IsDeleted       bool       `json:"isDeleted,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		ID:              u.UserID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		IsAdmin:         u.IsAdmin(),
		IsEmailVerified: u.IsEmailVerified,
		AuthProvider:    u.AuthProvider,
		LastLoginAt:     u.LastLoginAt,
		IsDeleted:       u.IsDeleted,
	}
}

// AuthEnvelope wraps login/signup responses.
type AuthEnvelope struct {
	Token string    `json:"token"`
	User  *SafeUser `json:"user"`
}

// UserEnvelope wraps single-user responses.
type UserEnvelope struct {
	User *SafeUser `json:"user"`
}

// UsersPageEnvelope wraps cursor-paginated user list responses.
type UsersPageEnvelope struct {
	Data       []*SafeUser `json:"data"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// decode reads a JSON body into v, writing a 400 and returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{domain.ErrBadRequest, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrTooManyRequests, http.StatusTooManyRequests},
	{domain.ErrUnavailable, http.StatusInternalServerError},
}

// httpError maps a service error to a status code and client-safe body.
// Errors that match no domain sentinel are logged and reported as a generic 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		otpErr *domain.OTPError
		rlErr  *domain.RateLimitError
		vrErr  *domain.VerificationRequiredError
	)
	switch {
	case errors.As(err, &otpErr):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: otpErr.Error(), AttemptsRemaining: otpErr.AttemptsRemaining})
		return
	case errors.As(err, &rlErr):
		writeJSON(w, http.StatusTooManyRequests, MessageEnvelope{Error: rlErr.Error(), RetryAfterMinutes: rlErr.RetryAfterMinutes()})
		return
	case errors.As(err, &vrErr):
		writeJSON(w, http.StatusForbidden, MessageEnvelope{
			Error:                vrErr.Error(),
			RequiresVerification: true,
			Email:                vrErr.Email,
			ExpiresIn:            int(vrErr.ExpiresIn / time.Second),
		})
		return
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			writeError(w, s.status, publicMessage(err, s.err))
			return
		}
	}
	slog.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// publicMessage strips the trailing ": <sentinel>" added by %w wrapping.
func publicMessage(err, sentinel error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
