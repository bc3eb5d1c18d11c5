package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-otp-auth/internal/application/ratelimit"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/infrastructure/dynamo"
	"github.com/go-otp-auth/internal/infrastructure/google"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/go-otp-auth/internal/infrastructure/sns"
	transporthttp "github.com/go-otp-auth/internal/transport/http"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	probes := map[string]handler.Probe{
		"dynamodb": func(ctx context.Context) error {
			_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoTables.OTPCodes)})
			return err
		},
	}

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, probes)
	if err != nil {
		return err
	}
	defer closeLimiter()

	events, err := sns.NewPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sns publisher: %w", err)
	}
	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID not set, google sign-in disabled")
	}

	// 5 requests/second, burst of 10 per client IP on the public auth routes.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	go sensitiveRL.RunCleanup(ctx)

	deps := &transporthttp.Deps{
		UserRepo:    dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, cfg.DynamoTables.UserEmails),
		OTPStore:    dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPCodes),
		Limiter:     limiter,
		Mailer:      smtp.NewMailer(cfg),
		JWTProvider: jwtProvider,
		Google:      google.NewVerifier(cfg.GoogleClientID),
		Events:      events,
		SensitiveRL: sensitiveRL,
		Probes:      probes,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}

// newLimiter shares windows through Redis when REDIS_URL is set, otherwise it
// keeps them in process memory with a background janitor. A Redis-backed
// limiter registers a readiness probe.
func newLimiter(ctx context.Context, cfg *config.Config, probes map[string]handler.Probe) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, rate limits are per instance")
		mem := ratelimit.NewMemoryLimiter()
		go mem.RunJanitor(ctx, time.Minute)
		return mem, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not reachable at startup, limited calls will fail until it is", "err", err)
	}
	return ratelimit.NewRedisLimiter(client, "ratelimit"), func() { _ = client.Close() }, nil
}
