package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-otp-auth/internal/domain"
)

// RequireRole lets a request through only when the session role is one of
// allowed. It must run after Auth.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := roleSet(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing session")
				return
			}
			if _, ok := set[claims.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserLookup loads the stored account behind a session.
type UserLookup interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// RequireCurrentRole checks the role stored on the session user rather than the
// one baked into the token, so a demoted or deactivated account loses access
// before its token expires. It must run after Auth.
func RequireCurrentRole(users UserLookup, allowed ...string) func(http.Handler) http.Handler {
	set := roleSet(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing session")
				return
			}
			u, err := users.Get(r.Context(), claims.UserID)
			if errors.Is(err, domain.ErrNotFound) {
				writeJSONError(w, http.StatusUnauthorized, "session user no longer exists")
				return
			}
			if err != nil {
				slog.Error("failed to load session user", "user_id", claims.UserID, "err", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if u.IsDeleted {
				writeJSONError(w, http.StatusForbidden, "account has been deactivated")
				return
			}
			if _, ok := set[u.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roleSet(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}
