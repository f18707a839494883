package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyClientIP struct{}
type contextKeyClientDescription struct{}

// ClientMetadata extracts the client IP and a human readable description of
// the submitting client from the request. Applied early in the chain so
// handlers and notifications can attribute submissions.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyClientIP{}, clientIPFromRequest(r))
		ctx = context.WithValue(ctx, contextKeyClientDescription{}, describeClient(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// GetClientDescription retrieves the parsed client description.
func GetClientDescription(ctx context.Context) string {
	if desc, ok := ctx.Value(contextKeyClientDescription{}).(string); ok {
		return desc
	}
	return ""
}

// describeClient condenses a raw User-Agent into "Browser on OS".
func describeClient(raw string) string {
	if raw == "" {
		return "unknown client"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		if idx := strings.Index(version, "."); idx > 0 {
			version = version[:idx]
		}
		return strings.TrimSpace(name + " " + version + " on " + os)
	case name != "":
		return name
	case os != "":
		return os
	default:
		return raw
	}
}

// clientIPFromRequest extracts the originating IP, honoring proxy headers.
func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
