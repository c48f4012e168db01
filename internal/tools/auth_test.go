package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/pkg/models"
)

type fakeAuthorizer struct {
	req   *models.AuthRequest
	err   error
	calls int
}

func (f *fakeAuthorizer) InitiateAuth(ctx context.Context, userID, integration string) (*models.AuthRequest, error) {
	f.calls++
	return f.req, f.err
}

var gmail = models.Integration{Name: "Gmail", Slug: "gmail", AppID: "gmail"}

func TestAuthAdapterRequiresAuth(t *testing.T) {
	authorizer := &fakeAuthorizer{req: &models.AuthRequest{RedirectURL: "https://connect.example/abc"}}
	adapter := NewAuthAdapter(gmail, authorizer, agent.Binding{UserID: "u1"}, nil)

	if adapter.Name() != "authenticateGmail" {
		t.Fatalf("Name() = %q", adapter.Name())
	}

	res, err := adapter.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result %s", res.Content)
	}
	if res.Auth == nil || res.Auth.URL != "https://connect.example/abc" || res.Auth.Integration != "Gmail" {
		t.Fatalf("Auth = %+v", res.Auth)
	}
	if !strings.Contains(res.Content, "Gmail Authentication Required") {
		t.Fatalf("content = %s", res.Content)
	}
	if !strings.Contains(res.Content, "https://connect.example/abc") {
		t.Fatalf("content missing url: %s", res.Content)
	}
}

func TestAuthAdapterFailures(t *testing.T) {
	tests := []struct {
		name       string
		authorizer Authorizer
		binding    agent.Binding
		wantKind   apperr.Kind
	}{
		{
			name:       "plain error",
			authorizer: &fakeAuthorizer{err: errors.New("backend down")},
			binding:    agent.Binding{UserID: "u1"},
			wantKind:   apperr.KindAuthInitiationFailed,
		},
		{
			name:       "not configured",
			authorizer: &fakeAuthorizer{err: apperr.New(apperr.KindNotConfigured, "integrations", "no auth config")},
			binding:    agent.Binding{UserID: "u1"},
			wantKind:   apperr.KindNotConfigured,
		},
		{
			name:       "no redirect",
			authorizer: &fakeAuthorizer{err: apperr.New(apperr.KindNoRedirectURL, "integrations", "no redirect")},
			binding:    agent.Binding{UserID: "u1"},
			wantKind:   apperr.KindNoRedirectURL,
		},
		{
			name:     "no authorizer",
			binding:  agent.Binding{UserID: "u1"},
			wantKind: apperr.KindNotConfigured,
		},
		{
			name:       "no user",
			authorizer: &fakeAuthorizer{},
			wantKind:   apperr.KindUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewAuthAdapter(gmail, tt.authorizer, tt.binding, nil).Run(context.Background())
			if out.Kind != OutcomeError {
				t.Fatalf("Kind = %q", out.Kind)
			}
			if out.ErrKind != tt.wantKind {
				t.Fatalf("ErrKind = %q, want %q", out.ErrKind, tt.wantKind)
			}
			if tt.wantKind != apperr.KindUnauthorized && !strings.Contains(out.Message, "Authentication Failed") {
				t.Fatalf("Message = %q", out.Message)
			}
		})
	}
}
