package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/composio"
	"github.com/haasonsaas/conductor/internal/integrations"
	"github.com/haasonsaas/conductor/internal/tools"
	"github.com/haasonsaas/conductor/pkg/models"
)

type recordingBackend struct {
	action string
}

func (b *recordingBackend) ExecuteAction(ctx context.Context, action, userID string, args json.RawMessage) (*composio.ActionResult, error) {
	b.action = action
	return &composio.ActionResult{Successful: true, Data: json.RawMessage(`{}`)}, nil
}

type stubAuthorizer struct{}

func (stubAuthorizer) InitiateAuth(ctx context.Context, userID, integration string) (*models.AuthRequest, error) {
	return &models.AuthRequest{RedirectURL: "https://connect.example/" + integration}, nil
}

func TestRegisterAll(t *testing.T) {
	registry := agent.NewToolRegistry()
	catalog := integrations.NewCatalog(nil)
	RegisterAll(registry, Deps{Backend: &recordingBackend{}, Authorizer: stubAuthorizer{}, Catalog: catalog})

	want := len(Actions()) + len(catalog.All())
	if registry.Len() != want {
		t.Fatalf("Len() = %d, want %d", registry.Len(), want)
	}
	if !registry.IsLoaded() {
		t.Fatal("registry should be marked loaded")
	}

	for _, name := range []string{"gmailSendEmail", "googleCalendarListEvents", "notionCreateNotionPage", "composioSearch", "authenticateGmail", "authenticateGoogleCalendar", "authenticateTwitter"} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("missing tool %q", name)
		}
	}

	gmailTools := registry.ByIntegration("Gmail")
	if len(gmailTools) != 5 {
		t.Fatalf("Gmail tools = %d, want 4 actions and the auth tool", len(gmailTools))
	}

	search, _ := registry.Get("composioSearch")
	if search.Integration != "" || search.Action != "COMPOSIO_SEARCH_SEARCH" {
		t.Fatalf("composioSearch registration = %+v", search)
	}
}

func TestRegisterAllOnce(t *testing.T) {
	registry := agent.NewToolRegistry()
	RegisterAll(registry, Deps{})
	first := registry.Len()

	registry.Register("extra", nil, "", "")
	RegisterAll(registry, Deps{})
	if registry.Len() != first+1 {
		t.Fatalf("Len() = %d, second RegisterAll should be a no-op", registry.Len())
	}
}

func TestActionsAreWellFormed(t *testing.T) {
	catalog := integrations.NewCatalog(nil)
	seen := make(map[string]bool)
	for _, action := range Actions() {
		if seen[action.Name] {
			t.Errorf("duplicate tool %q", action.Name)
		}
		seen[action.Name] = true

		if action.BackendAction == "" || strings.ToUpper(action.BackendAction) != action.BackendAction {
			t.Errorf("%s: backend action %q", action.Name, action.BackendAction)
		}
		if action.Description == "" {
			t.Errorf("%s: missing description", action.Name)
		}
		if action.Integration != "" {
			if _, ok := catalog.Lookup(action.Integration); !ok {
				t.Errorf("%s: unknown integration %q", action.Name, action.Integration)
			}
		}

		var schema struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(tools.ReflectSchema(action.Input), &schema); err != nil || schema.Type != "object" {
			t.Errorf("%s: schema type %q err %v", action.Name, schema.Type, err)
		}
	}
}

func TestInstantiatedToolsExecute(t *testing.T) {
	registry := agent.NewToolRegistry()
	backend := &recordingBackend{}
	RegisterAll(registry, Deps{Backend: backend, Authorizer: stubAuthorizer{}})

	set := registry.InstantiateAll(agent.Binding{UserID: "u1"})

	res, err := set.Execute(context.Background(), models.ToolCall{
		ID:    "call-1",
		Name:  "slackSendMessage",
		Input: json.RawMessage(`{"channel":"#general","text":"hello"}`),
	}, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result %s", res.Content)
	}
	if backend.action != "SLACK_SENDS_A_MESSAGE_TO_A_SLACK_CHANNEL" {
		t.Fatalf("backend action = %q", backend.action)
	}

	res, err = set.Execute(context.Background(), models.ToolCall{ID: "call-2", Name: "authenticateSlack"}, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Auth == nil || res.Auth.URL != "https://connect.example/Slack" {
		t.Fatalf("Auth = %+v", res.Auth)
	}
}
