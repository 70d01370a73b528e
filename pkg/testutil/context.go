package testutil

import (
	"net/http"

	"payerhub/internal/platform/middleware"
)

// WithAuth stamps the caller identity on the request context, simulating
// what the auth middleware does for a request with a valid bearer token.
func WithAuth(req *http.Request, userID, organizationID string) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, organizationID))
}
