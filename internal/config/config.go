package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"3000"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	// JWTSecret selects HS256 signing. When empty the RSA key pair is used (RS256).
	JWTSecret         string        `env:"JWT_SECRET"`
	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`
	ResetTokenExpiry  time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"15m"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Account Security"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SNSRegion             string `env:"SNS_REGION" envDefault:"us-east-1"`
	SNSAuthEventsTopicARN string `env:"SNS_AUTH_EVENTS_TOPIC_ARN"`
	GoogleClientID        string `env:"GOOGLE_CLIENT_ID"`
	// RedisURL shares rate-limit windows across instances; empty keeps them in process memory.
	RedisURL string `env:"REDIS_URL"`

	// CORS allowed origins.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	// Signup is restricted to these email domains; empty allows any domain.
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" envSeparator:","`

	OTPExpiry  time.Duration `env:"OTP_EXPIRY" envDefault:"10m"`
	RateLimits RateLimits

	LoginLockoutThreshold int           `env:"LOGIN_LOCKOUT_THRESHOLD" envDefault:"5"`
	LoginLockoutDuration  time.Duration `env:"LOGIN_LOCKOUT_DURATION" envDefault:"15m"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users      string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`
	UserEmails string `env:"DYNAMO_TABLE_USER_EMAILS" envDefault:"user_emails"`
	OTPCodes   string `env:"DYNAMO_TABLE_OTP_CODES" envDefault:"otp_codes"`
}

// RateLimits holds the fixed-window policy for each rate-limited operation.
type RateLimits struct {
	Signup Window `envPrefix:"RATE_LIMIT_SIGNUP_"`
	Login  Window `envPrefix:"RATE_LIMIT_LOGIN_"`
	Forgot Window `envPrefix:"RATE_LIMIT_FORGOT_"`
	Resend Window `envPrefix:"RATE_LIMIT_RESEND_"`
}

// Window is a maximum number of calls per fixed time window.
type Window struct {
	Max    int           `env:"MAX"`
	Period time.Duration `env:"WINDOW"`
}

// Load reads all configuration from environment variables.
// Rate-limit windows keep the defaults below unless overridden.
func Load() (*Config, error) {
	cfg := &Config{
		RateLimits: RateLimits{
			Signup: Window{Max: 3, Period: 15 * time.Minute},
			Login:  Window{Max: 5, Period: 15 * time.Minute},
			Forgot: Window{Max: 3, Period: 15 * time.Minute},
			Resend: Window{Max: 3, Period: 15 * time.Minute},
		},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
