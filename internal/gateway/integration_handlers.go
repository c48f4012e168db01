package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/integrations"
)

type authStartRequest struct {
	Integration string `json:"integration"`
}

type authStartResponse struct {
	RedirectURL string `json:"redirectUrl"`
	Integration string `json:"integration"`
}

func (s *Server) integrationsConfigured(w http.ResponseWriter, r *http.Request) bool {
	if s.integrations == nil {
		s.writeError(w, r, apperr.New(apperr.KindNotConfigured, "integrations", "integrations are not configured"))
		return false
	}
	return true
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "integrations")
	if user == nil || !s.integrationsConfigured(w, r) {
		return
	}
	list, err := s.integrations.List(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": list})
}

func (s *Server) handleIntegrationAuth(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "integrations")
	if user == nil || !s.integrationsConfigured(w, r) {
		return
	}
	var body authStartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindBadRequest, "integrations", err, ""))
		return
	}
	if strings.TrimSpace(body.Integration) == "" {
		s.writeError(w, r, apperr.New(apperr.KindBadRequest, "integrations", "Integration name is required"))
		return
	}

	req, err := s.integrations.InitiateAuth(r.Context(), user.ID, body.Integration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authStartResponse{RedirectURL: req.RedirectURL, Integration: req.Integration})
}

// handleIntegrationStatus reports the connection state. With wait=true it
// polls until the connection appears or the poll budget is spent.
func (s *Server) handleIntegrationStatus(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "integrations")
	if user == nil || !s.integrationsConfigured(w, r) {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("integration"))
	if name == "" {
		s.writeError(w, r, apperr.New(apperr.KindBadRequest, "integrations", "Integration name is required"))
		return
	}

	var (
		status *integrations.ConnectionStatus
		err    error
	)
	if r.URL.Query().Get("wait") == "true" {
		status, err = s.integrations.WaitForConnection(r.Context(), user.ID, name)
	} else {
		status, err = s.integrations.Status(r.Context(), user.ID, name)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
