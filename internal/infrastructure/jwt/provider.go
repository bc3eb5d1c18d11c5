package jwtinfra

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. Session tokens authenticate API calls; reset tokens only
// authorize a single password reset.
const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"
)

// Claims holds the JWT payload fields.
type Claims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Provider signs and verifies JWTs. HS256 when a shared secret is configured,
// RS256 with the PEM key pair otherwise.
type Provider struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	expiry    time.Duration
	now       func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.JWTSecret != "" {
		secret := []byte(cfg.JWTSecret)
		return &Provider{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret, expiry: cfg.JWTExpiry, now: time.Now}, nil
	}

	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{method: jwt.SigningMethodRS256, signKey: privKey, verifyKey: pubKey, expiry: cfg.JWTExpiry, now: time.Now}, nil
}

// WithClock replaces the time source used for issuing and validating tokens.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Sign issues a session token for u.
func (p *Provider) Sign(u *domain.User) (string, error) {
	return p.sign(Claims{
		UserID:  u.UserID,
		Email:   u.Email,
		Role:    u.Role,
		Purpose: PurposeSession,
	}, p.expiry)
}

// SignPurpose issues a short-lived token scoped to purpose.
func (p *Provider) SignPurpose(userID, email, purpose string, ttl time.Duration) (string, error) {
	return p.sign(Claims{UserID: userID, Email: email, Purpose: purpose}, ttl)
}

func (p *Provider) sign(c Claims, ttl time.Duration) (string, error) {
	now := p.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(p.method, c).SignedString(p.signKey)
}

// Verify parses tokenStr and checks that it was issued for purpose.
func (p *Provider) Verify(tokenStr, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != p.method.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return p.verifyKey, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("token purpose %q not accepted here", claims.Purpose)
	}
	return claims, nil
}
