package domain

import "time"

// Auth event types published to downstream consumers.
const (
	EventUserSignedUp  = "user.signed_up"
	EventUserVerified  = "user.verified"
	EventPasswordReset = "user.password_reset"
	EventGoogleLinked  = "user.google_linked"
	EventUserDeleted   = "user.deleted"
	EventUserRestored  = "user.restored"
)

// AuthEvent is a fire-and-forget notification about an account state change.
type AuthEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}
