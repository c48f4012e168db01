package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/pkg/models"
)

// SessionCookie is the cookie carrying a session JWT.
const SessionCookie = "conductor_session"

// Middleware authenticates requests by Bearer token, X-API-Key header or
// session cookie, in that order. Requests without valid credentials continue
// without a user; handlers decide whether a user is required.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if user := authenticate(service, r, logger); user != nil {
				ctx := WithUser(r.Context(), user)
				ctx = observability.AddUserID(ctx, user.ID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(service *Service, r *http.Request, logger *slog.Logger) *models.User {
	if token := extractBearer(r.Header.Get("Authorization")); token != "" {
		user, err := service.ValidateJWT(token)
		if err == nil {
			return user
		}
		if logger != nil {
			logger.Warn("jwt validation failed", "error", err)
		}
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = r.Header.Get("Api-Key")
	}
	if apiKey != "" {
		user, err := service.ValidateAPIKey(apiKey)
		if err == nil {
			return user
		}
		if logger != nil {
			logger.Warn("api key validation failed", "error", err)
		}
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if user, err := service.ValidateJWT(cookie.Value); err == nil {
			return user
		}
	}
	return nil
}

func extractBearer(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
