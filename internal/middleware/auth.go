package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/pkg/chat"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFrom returns the authenticated user profile attached by Authenticate,
// or nil when the request was not authenticated.
func UserFrom(ctx context.Context) *services.UserProfile {
	user, _ := ctx.Value(userContextKey).(*services.UserProfile)
	return user
}

// WithUser attaches a user profile to a context, bypassing token
// verification. Used in tests.
func WithUser(ctx context.Context, user *services.UserProfile) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Authenticate verifies the bearer token on every request and attaches the
// resolved user profile to the request context. Requests without a valid
// credential are rejected before any handler runs.
func Authenticate(verifier services.Verifier, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeAuthError(w, "missing bearer token")
			return
		}

		user, err := verifier.Verify(r.Context(), token)
		if err != nil {
			logger.Debug("Token verification failed", "error", err)
			writeAuthError(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(chat.ErrorResponse{
		Error:  msg,
		Reason: "authentication_required",
	})
}
