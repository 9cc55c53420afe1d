package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// UserIDKey is the context key for storing the authenticated user ID.
const UserIDKey contextKey = "user_id"

// UserID returns the authenticated user of ctx, or "" when there is none.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// WithUserID returns a copy of ctx authenticated as userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}

// RequireAuth validates the bearer token and stores the user id in the
// request context. Requests without a valid token go to onError.
func RequireAuth(m *JWTManager, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err == nil {
				var claims *Claims
				if claims, err = m.Validate(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
					return
				}
			}
			if onError != nil {
				onError(w, r, err)
				return
			}
			http.Error(w, err.Error(), http.StatusUnauthorized)
		})
	}
}
