package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/pkg/models"
)

type gatewayServer struct {
	*httptest.Server
	metadata      bool
	registrations atomic.Int32
	tokenForm     url.Values
}

func newGatewayServer(t *testing.T, metadata bool) *gatewayServer {
	t.Helper()
	g := &gatewayServer{metadata: metadata}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/oauth-protected-resource/mcp", func(w http.ResponseWriter, r *http.Request) {
		if !g.metadata {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(resourceMetadata{
			Resource:             g.URL + "/mcp",
			AuthorizationServers: []string{g.URL + "/auth"},
		})
	})
	mux.HandleFunc("GET /.well-known/oauth-authorization-server/auth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(serverMetadata{
			Issuer:                g.URL + "/auth",
			AuthorizationEndpoint: g.URL + "/auth/oauth/authorize",
			TokenEndpoint:         g.URL + "/auth/oauth/token",
			RegistrationEndpoint:  g.URL + "/auth/oauth/register",
		})
	})
	register := func(w http.ResponseWriter, r *http.Request) {
		g.registrations.Add(1)
		var meta ClientMetadata
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil || meta.ClientName == "" {
			http.Error(w, "bad metadata", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_id":     "client-123",
			"client_secret": "secret-456",
			"redirect_uris": meta.RedirectURIs,
		})
	}
	token := func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		g.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600,"id_token":"not-a-jwt","scope":"mcp:tools"}`))
	}
	mux.HandleFunc("POST /auth/oauth/register", register)
	mux.HandleFunc("POST /auth/oauth/token", token)
	mux.HandleFunc("POST /register", register)
	mux.HandleFunc("POST /token", token)

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func newTestClient(g *gatewayServer, store storage.OAuthStateStore) *Client {
	return NewClient(Config{
		ServerURL:  g.URL + "/mcp",
		Provider:   "rube",
		ClientName: "EvLab MCP Client",
		Scope:      "mcp:tools",
		HTTPClient: g.Client(),
	}, store)
}

var user = &models.User{ID: "u1"}

func TestClientFlow(t *testing.T) {
	tests := []struct {
		name         string
		metadata     bool
		wantAuthPath string
	}{
		{name: "discovered endpoints", metadata: true, wantAuthPath: "/auth/oauth/authorize"},
		{name: "fallback endpoints", metadata: false, wantAuthPath: "/authorize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			g := newGatewayServer(t, tt.metadata)
			store := storage.NewMemoryStore()
			client := newTestClient(g, store)

			raw, err := client.Start(ctx, user, "https://app.example/")
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			authURL, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("authorization url: %v", err)
			}
			if authURL.Path != tt.wantAuthPath {
				t.Fatalf("authorization path = %s, want %s", authURL.Path, tt.wantAuthPath)
			}
			q := authURL.Query()
			checks := map[string]string{
				"client_id":             "client-123",
				"redirect_uri":          "https://app.example/api/mcp/oauth/callback",
				"response_type":         "code",
				"code_challenge_method": "S256",
				"scope":                 "mcp:tools",
				"resource":              g.URL + "/mcp",
			}
			for key, want := range checks {
				if got := q.Get(key); got != want {
					t.Errorf("%s = %q, want %q", key, got, want)
				}
			}
			if q.Get("state") == "" || q.Get("code_challenge") == "" {
				t.Fatalf("missing state or challenge: %s", raw)
			}

			state, _ := store.GetOAuthState(ctx, "u1", "rube")
			if state.CodeVerifier == "" || state.ClientInfo.ClientID != "client-123" {
				t.Fatalf("stored state = %+v", state)
			}

			// A second start reuses the registered client.
			if _, err := client.Start(ctx, user, "https://app.example"); err != nil {
				t.Fatalf("second Start() error = %v", err)
			}
			if n := g.registrations.Load(); n != 1 {
				t.Fatalf("registrations = %d, want 1", n)
			}
			state, _ = store.GetOAuthState(ctx, "u1", "rube")
			verifier := state.CodeVerifier

			if err := client.Finish(ctx, user, "code-1", "https://app.example"); err != nil {
				t.Fatalf("Finish() error = %v", err)
			}
			form := g.tokenForm
			if form.Get("code") != "code-1" || form.Get("code_verifier") != verifier || form.Get("client_secret") != "secret-456" {
				t.Fatalf("token request = %v", form)
			}

			state, _ = store.GetOAuthState(ctx, "u1", "rube")
			if state.CodeVerifier != "" {
				t.Fatal("verifier should be cleared after the exchange")
			}
			tokens := state.Tokens
			if tokens == nil || tokens.AccessToken != "at-1" || tokens.RefreshToken != "rt-1" || tokens.ExpiresIn != 3600 || tokens.IDToken != "not-a-jwt" {
				t.Fatalf("tokens = %+v", tokens)
			}

			relink, err := client.ShouldRelink(ctx, "u1")
			if err != nil || relink {
				t.Fatalf("ShouldRelink() = %v, %v", relink, err)
			}
		})
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	g := newGatewayServer(t, true)
	store := storage.NewMemoryStore()
	client := newTestClient(g, store)

	if _, err := client.Start(ctx, nil, "https://app.example"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("Start() without user error = %v", err)
	}
	if err := client.Finish(ctx, user, "", "https://app.example"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("Finish() without code error = %v", err)
	}
	if err := client.Finish(ctx, user, "code", "https://app.example"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("Finish() before Start() error = %v", err)
	}

	unconfigured := NewClient(Config{Provider: "rube"}, store)
	if _, err := unconfigured.Start(ctx, user, "https://app.example"); !apperr.Is(err, apperr.KindNotConfigured) {
		t.Fatalf("Start() without server error = %v", err)
	}

	relink, err := client.ShouldRelink(ctx, "nobody")
	if err != nil || !relink {
		t.Fatalf("ShouldRelink() for unlinked user = %v, %v", relink, err)
	}
}

func TestClientProvider(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	p, err := NewClientProvider(ctx, store, "u1", "rube", "https://app.example/cb", ClientMetadata{ClientName: "c"})
	if err != nil {
		t.Fatalf("NewClientProvider() error = %v", err)
	}
	if p.ClientInformation() != nil || p.Tokens() != nil {
		t.Fatal("new provider should be empty")
	}
	if _, err := p.CodeVerifier(); !errors.Is(err, ErrNoCodeVerifier) {
		t.Fatalf("CodeVerifier() error = %v", err)
	}

	if err := p.SaveCodeVerifier(ctx, "v1"); err != nil {
		t.Fatalf("SaveCodeVerifier() error = %v", err)
	}
	if err := p.SaveClientInformation(ctx, &models.OAuthClientInfo{ClientID: "cid"}); err != nil {
		t.Fatalf("SaveClientInformation() error = %v", err)
	}

	reloaded, _ := NewClientProvider(ctx, store, "u1", "rube", "https://app.example/cb", ClientMetadata{})
	if v, err := reloaded.CodeVerifier(); err != nil || v != "v1" {
		t.Fatalf("reloaded verifier = %q, %v", v, err)
	}
	if reloaded.ClientInformation().ClientID != "cid" {
		t.Fatal("client information was not persisted")
	}

	if err := reloaded.SaveTokens(ctx, &models.OAuthTokens{AccessToken: "at"}); err != nil {
		t.Fatalf("SaveTokens() error = %v", err)
	}
	if _, err := reloaded.CodeVerifier(); !errors.Is(err, ErrNoCodeVerifier) {
		t.Fatal("SaveTokens should clear the verifier")
	}
	state, _ := store.GetOAuthState(ctx, "u1", "rube")
	if state.CodeVerifier != "" || state.Tokens.AccessToken != "at" || state.ClientInfo.ClientID != "cid" {
		t.Fatalf("stored state = %+v", state)
	}
	if !strings.HasSuffix(p.RedirectURL(), "/cb") || p.ClientMetadata().ClientName != "c" {
		t.Fatal("provider lost its redirect or metadata")
	}
}
