package gateway

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/auth"
)

// The tool gateway OAuth routes are browser redirects, so they answer with
// plain text rather than JSON errors.

// mcpStateCookie binds the authorization request to the browser that
// started it. The callback must present the same state.
const mcpStateCookie = "conductor_mcp_state"

type mcpStatusResponse struct {
	Provider string `json:"provider"`
	Relink   bool   `json:"relink"`
}

func (s *Server) handleMCPStart(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if s.mcp == nil {
		http.Error(w, "Tool gateway is not configured", http.StatusBadRequest)
		return
	}

	authURL, err := s.mcp.Start(r.Context(), user, s.origin(r))
	if err != nil {
		s.mcpError(w, r, err)
		return
	}
	if parsed, err := url.Parse(authURL); err == nil {
		if state := parsed.Query().Get("state"); state != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     mcpStateCookie,
				Value:    state,
				Path:     "/api/mcp/oauth",
				MaxAge:   600,
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleMCPCallback(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	query := r.URL.Query()
	if e := query.Get("error"); e != "" {
		http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
		return
	}
	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}
	if s.mcp == nil {
		http.Error(w, "Tool gateway is not configured", http.StatusBadRequest)
		return
	}
	cookie, err := r.Cookie(mcpStateCookie)
	if err != nil || cookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(query.Get("state"))) != 1 {
		s.metrics.RecordError("mcp", "state_mismatch")
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: mcpStateCookie, Path: "/api/mcp/oauth", MaxAge: -1, HttpOnly: true})

	origin := s.origin(r)
	if err := s.mcp.Finish(r.Context(), user, code, origin); err != nil {
		s.mcpError(w, r, err)
		return
	}
	http.Redirect(w, r, origin+"/", http.StatusFound)
}

// handleMCPStatus reports whether the caller must run the OAuth flow again.
func (s *Server) handleMCPStatus(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "mcp")
	if user == nil {
		return
	}
	if s.mcp == nil {
		s.writeError(w, r, apperr.New(apperr.KindNotConfigured, "mcp", ""))
		return
	}
	relink, err := s.mcp.ShouldRelink(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mcpStatusResponse{Provider: s.mcp.Provider(), Relink: relink})
}

func (s *Server) mcpError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.KindInternal {
		status = http.StatusBadGateway
	}
	s.logger.WarnContext(r.Context(), "tool gateway oauth failed", "error", err)
	s.metrics.RecordError("mcp", string(kind))
	message := "Tool gateway authorization failed"
	if appErr, ok := apperr.As(err); ok {
		message = appErr.UserMessage()
	}
	http.Error(w, message, status)
}
