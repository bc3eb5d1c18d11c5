package http

import (
	"context"

	"github.com/go-otp-auth/internal/application/otp"
	"github.com/go-otp-auth/internal/application/ratelimit"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/infrastructure/google"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/go-otp-auth/internal/infrastructure/sns"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)
	// ScanPage walks the whole table, deleted users included.
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    UserRepository
	OTPStore    otp.Store
	Limiter     ratelimit.Limiter
	Mailer      smtp.Mailer
	JWTProvider *jwtinfra.Provider
	Google      *google.Verifier
	Events      sns.EventPublisher
	// SensitiveRL guards the public auth routes per client IP. A default
	// limiter is built when nil.
	SensitiveRL *appmiddleware.RateLimiter
	// Probes back GET /v1/health-check/ready.
	Probes map[string]handler.Probe
}
