package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the validator. Token
// issuance is not this service's concern; it only verifies.
type JWTClaims struct {
	UserID         string
	OrganizationID string
}

type contextKeyUserID struct{}
type contextKeyOrganizationID struct{}

// WithIdentity returns a context carrying the caller identity. Handler tests
// use it to bypass token verification.
func WithIdentity(ctx context.Context, userID, organizationID string) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID{}, userID)
	return context.WithValue(ctx, contextKeyOrganizationID{}, organizationID)
}

// GetUserID retrieves the authenticated user id from the context.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(contextKeyUserID{}).(string)
	return userID
}

// GetOrganizationID retrieves the caller's organization id from the context.
func GetOrganizationID(ctx context.Context) string {
	orgID, _ := ctx.Value(contextKeyOrganizationID{}).(string)
	return orgID
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("rejected invalid token", "error", err)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithIdentity(r.Context(), claims.UserID, claims.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
