package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/streams"
	"github.com/haasonsaas/conductor/pkg/models"
)

var errTest = errors.New("model unavailable")

func TestToCompletionMessages(t *testing.T) {
	history := []*models.Message{
		{
			Role: models.RoleUser,
			Parts: []models.Part{
				models.TextPart("what is this?"),
				{Type: models.PartFile, MediaType: "image/png", Filename: "chart.png", URL: "https://files.example/chart.png"},
			},
		},
		{
			Role: models.RoleAssistant,
			Parts: []models.Part{
				{Type: models.PartReasoning, Text: "let me look"},
				models.TextPart("Checking."),
				{Type: models.PartToolInvocation, ToolInvocation: &models.ToolInvocation{
					ToolCallID: "c1", ToolName: "googleDriveFindFile",
					State: models.ToolStateOutputAvailable, Input: json.RawMessage(`{"q":"chart"}`), Output: json.RawMessage(`{"success":true}`),
				}},
				{Type: models.PartToolInvocation, ToolInvocation: &models.ToolInvocation{
					ToolCallID: "c2", ToolName: "slackSendMessage", State: models.ToolStateInputAvailable,
				}},
				{Type: models.PartToolInvocation, ToolInvocation: &models.ToolInvocation{
					ToolCallID: "c3", ToolName: "gmailSendEmail", State: models.ToolStateOutputError, ErrorText: "boom",
				}},
				models.TextPart("It is a chart."),
			},
		},
		{Role: models.RoleSystem, Parts: []models.Part{models.TextPart("ignored")}},
	}

	got := toCompletionMessages(history)
	var roles []string
	for _, m := range got {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "user,assistant,tool,assistant" {
		t.Fatalf("roles = %v", roles)
	}

	if want := "what is this?\n[Attached image/png: chart.png (https://files.example/chart.png)]"; got[0].Content != want {
		t.Fatalf("user content = %q", got[0].Content)
	}

	step := got[1]
	if step.Content != "Checking." || len(step.ToolCalls) != 2 {
		t.Fatalf("assistant step = %+v", step)
	}
	if step.ToolCalls[1].ID != "c3" || string(step.ToolCalls[1].Input) != "{}" {
		t.Fatalf("errored call = %+v", step.ToolCalls[1])
	}

	results := got[2].ToolResults
	if len(results) != 2 || results[0].Content != `{"success":true}` || !results[1].IsError || results[1].Content != "boom" {
		t.Fatalf("tool results = %+v", results)
	}
	if got[3].Content != "It is a chart." || len(got[3].ToolCalls) != 0 {
		t.Fatalf("final step = %+v", got[3])
	}
}

func TestAccumulator(t *testing.T) {
	acc := newAccumulator()
	var events []streams.Event

	events = append(events, acc.reasoning("think "))
	events = append(events, acc.reasoning("hard"))
	events = append(events, acc.text("Hello"))
	events = append(events, acc.tool(&models.ToolEvent{ToolCallID: "c1", ToolName: "slackSendMessage", Stage: models.ToolEventRequested})...)
	events = append(events, acc.tool(&models.ToolEvent{ToolCallID: "c1", ToolName: "slackSendMessage", Stage: models.ToolEventStarted})...)
	events = append(events, acc.tool(&models.ToolEvent{ToolCallID: "c1", ToolName: "slackSendMessage", Stage: models.ToolEventSucceeded, Output: "sent"})...)
	events = append(events, acc.tool(&models.ToolEvent{ToolCallID: "c2", ToolName: "gmailSendEmail", Stage: models.ToolEventRequested, Input: json.RawMessage(`{"to":"a@b.c"}`)})...)
	events = append(events, acc.tool(&models.ToolEvent{ToolCallID: "c2", ToolName: "gmailSendEmail", Stage: models.ToolEventFailed, Error: "timeout"})...)
	events = append(events, acc.text(" again"))

	want := "reasoning-delta,reasoning-delta,text-delta,tool-input-available,tool-output-available,tool-input-available,tool-output-error,text-delta"
	if got := eventTypes(events); got != want {
		t.Fatalf("events = %s", got)
	}
	if string(events[4].Output) != `"sent"` {
		t.Fatalf("non-JSON output = %s", events[4].Output)
	}
	if string(events[3].Input) != "{}" {
		t.Fatalf("missing input = %s", events[3].Input)
	}

	parts := acc.parts
	if len(parts) != 5 {
		t.Fatalf("parts = %d, want 5", len(parts))
	}
	if parts[0].Text != "think hard" || parts[1].Text != "Hello" || parts[4].Text != " again" {
		t.Fatalf("text parts = %q %q %q", parts[0].Text, parts[1].Text, parts[4].Text)
	}
	if inv := parts[2].ToolInvocation; inv.State != models.ToolStateOutputAvailable {
		t.Fatalf("c1 state = %s", inv.State)
	}
	if inv := parts[3].ToolInvocation; inv.State != models.ToolStateOutputError || inv.ErrorText != "timeout" {
		t.Fatalf("c2 = %+v", inv)
	}

	// Persisted parts feed the next turn.
	msgs := toCompletionMessages([]*models.Message{{Role: models.RoleAssistant, Parts: parts}})
	if len(msgs) != 3 {
		t.Fatalf("round trip produced %d messages", len(msgs))
	}
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("word ", 40)
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  What's   on\nmy calendar?  ", "What's on my calendar?"},
		{`"Quoted: title"`, "Quoted: title"},
		{"", "New chat"},
		{"   ", "New chat"},
	}
	for _, tt := range tests {
		if got := deriveTitle(tt.in); got != tt.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	got := deriveTitle(long)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) > MaxTitleLength {
		t.Fatalf("long title = %q", got)
	}
}

func TestGenerateTitle(t *testing.T) {
	msg := &models.Message{Parts: []models.Part{models.TextPart("plan my week please")}}

	provider := &scriptedProvider{steps: [][]agent.CompletionChunk{{{Text: " Weekly "}, {Text: "planning"}}}}
	if got := generateTitle(t.Context(), provider, "m", msg); got != "Weekly planning" {
		t.Fatalf("generateTitle() = %q", got)
	}
	if req := provider.request(0); req.System != titlePrompt || req.Messages[0].Content != "plan my week please" {
		t.Fatalf("title request = %+v", req)
	}

	failing := &scriptedProvider{err: errTest}
	if got := generateTitle(t.Context(), failing, "m", msg); got != "plan my week please" {
		t.Fatalf("fallback title = %q", got)
	}
	if got := generateTitle(t.Context(), nil, "m", msg); got != "plan my week please" {
		t.Fatalf("nil provider title = %q", got)
	}
}
