package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/pkg/models"
)

// errorBody is the JSON error shape of every API route.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError maps err to its status. Unclassified errors are logged and
// answered with a generic internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, "api", err, "")
	}
	status := apperr.HTTPStatus(appErr.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", observability.GetRequestID(r.Context()))
	}
	s.metrics.RecordError("http", string(appErr.Kind))

	body := errorBody{Code: appErr.Code(), Message: appErr.UserMessage()}
	if appErr.Kind == apperr.KindBadRequest && appErr.Cause != nil {
		body.Cause = appErr.Cause.Error()
	}
	writeJSON(w, status, body)
}

// user returns the authenticated user, or writes 401 and returns nil.
func (s *Server) user(w http.ResponseWriter, r *http.Request, surface string) *models.User {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user
	}
	s.writeError(w, r, apperr.New(apperr.KindUnauthorized, surface, ""))
	return nil
}

// origin is the public origin used for redirects.
func (s *Server) origin(r *http.Request) string {
	if base := strings.TrimRight(s.config.Server.BaseURL, "/"); base != "" {
		return base
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
