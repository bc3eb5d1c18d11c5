package google

import (
	"context"
	"errors"
	"testing"

	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func stubValidate(p *idtoken.Payload, err error) validateFunc {
	return func(context.Context, string, string) (*idtoken.Payload, error) { return p, err }
}

func TestVerifier_ExtractsClaims(t *testing.T) {
	v := &Verifier{clientID: "cid", validate: stubValidate(&idtoken.Payload{
		Subject: "g-123",
		Claims: map[string]interface{}{
			"email":          "ann@example.com",
			"email_verified": true,
			"given_name":     "Ann",
			"family_name":    "Lee",
		},
	}, nil)}

	id, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "g-123", id.Sub)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Ann Lee", id.Name)
}

func TestVerifier_InvalidToken(t *testing.T) {
	v := &Verifier{clientID: "cid", validate: stubValidate(nil, errors.New("bad audience"))}
	_, err := v.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifier_NotConfigured(t *testing.T) {
	_, err := NewVerifier("").Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
