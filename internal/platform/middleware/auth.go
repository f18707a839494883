package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"veilscreen/internal/policy"
)

// CapabilityValidator turns a bearer token into the capability it grants.
type CapabilityValidator interface {
	ValidateToken(tokenString string) (policy.Capability, error)
}

type contextKeyCapability struct{}

// GetCapability retrieves the caller's capability from the context.
func GetCapability(ctx context.Context) (policy.Capability, bool) {
	grant, ok := ctx.Value(contextKeyCapability{}).(policy.Capability)
	return grant, ok
}

// WithCapability injects a capability into a context. Useful for handler
// tests that skip the full middleware chain.
func WithCapability(ctx context.Context, grant policy.Capability) context.Context {
	return context.WithValue(ctx, contextKeyCapability{}, grant)
}

// RequireCapability validates the Authorization bearer token and stores the
// granted capability in the request context. Which actions the capability
// covers is checked per operation in the service layer.
func RequireCapability(validator CapabilityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			grant, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCapability(ctx, grant)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
