package gateway

import (
	"errors"
	"net/http"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/pkg/models"
)

type guestResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// handleGuest issues a guest identity and sets the session cookie.
func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	user, token, err := s.auth.IssueGuest()
	if errors.Is(err, auth.ErrAuthDisabled) {
		s.writeError(w, r, apperr.New(apperr.KindNotConfigured, "auth", "sessions are not configured"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.Auth.TokenExpiry.Seconds()),
	})
	writeJSON(w, http.StatusOK, guestResponse{User: user, Token: token})
}
