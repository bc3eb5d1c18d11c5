package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/application/otp"
	"github.com/go-otp-auth/internal/application/user"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	sensitiveRL := deps.SensitiveRL
	if sensitiveRL == nil {
		// 5 requests/second, burst of 10.
		sensitiveRL = appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	}
	authMw := appmiddleware.Auth(deps.JWTProvider)

	otpSvc := otp.NewService(otp.ServiceDeps{Store: deps.OTPStore})
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:       deps.UserRepo,
		OTPs:           otpSvc,
		Limiter:        deps.Limiter,
		Mailer:         deps.Mailer,
		TokenIssuer:    deps.JWTProvider,
		GoogleVerifier: deps.Google,
		Events:         deps.Events,
		Policy:         auth.PolicyFromConfig(cfg),
	})
	userSvc := user.NewService(user.ServiceDeps{UserRepo: deps.UserRepo, Events: deps.Events})

	healthH := handler.NewHealthHandler(deps.Probes)
	authH := handler.NewAuthHandler(authSvc)
	userH := handler.NewUserHandler(userSvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			// ── Public routes (no auth) ──────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(sensitiveRL.Limit)
				r.Post("/signup/request-code", authH.SignupRequestCode)
				r.Post("/signup/verify-code", authH.SignupVerifyCode)
				r.Post("/login", authH.Login)
				r.Post("/resend-code", authH.ResendCode)
				r.Post("/forgot-password/request-code", authH.ForgotPasswordRequestCode)
				r.Post("/forgot-password/verify-code", authH.ForgotPasswordVerifyCode)
				r.Post("/reset-password", authH.ResetPassword)
				r.Post("/google", authH.Google)
			})

			r.With(authMw).Get("/me", authH.Me)
		})

		// ── Admin-only routes ────────────────────────────────────────────────
		r.Route("/users", func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
			// Tokens outlive role changes; confirm against the stored account.
			r.Use(appmiddleware.RequireCurrentRole(deps.UserRepo, domain.RoleAdmin))

			r.Get("/", userH.List)
			r.Get("/{id}", userH.Get)
			r.Put("/{id}/role", userH.SetRole)
			r.Delete("/{id}", userH.Delete)
			r.Post("/{id}/restore", userH.Restore)
		})
	})

	return r
}
