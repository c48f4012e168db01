package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/streams"
	"github.com/haasonsaas/conductor/pkg/models"
)

// toCompletionMessages converts stored messages to model input. An
// assistant message that spans several steps becomes alternating assistant
// and tool messages; unfinished tool invocations are dropped.
func toCompletionMessages(messages []*models.Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, agent.CompletionMessage{
				Role:    string(models.RoleUser),
				Content: userContent(msg),
			})
		case models.RoleAssistant:
			out = append(out, assistantMessages(msg)...)
		}
	}
	return out
}

func userContent(msg *models.Message) string {
	var b strings.Builder
	b.WriteString(msg.Text())
	for _, part := range append(append([]models.Part(nil), msg.Parts...), msg.Attachments...) {
		if part.Type != models.PartFile {
			continue
		}
		fmt.Fprintf(&b, "\n[Attached %s: %s (%s)]", part.MediaType, part.Filename, part.URL)
	}
	return b.String()
}

func assistantMessages(msg *models.Message) []agent.CompletionMessage {
	var (
		out     []agent.CompletionMessage
		text    strings.Builder
		calls   []models.ToolCall
		results []models.ToolResult
	)
	flush := func() {
		if text.Len() == 0 && len(calls) == 0 {
			return
		}
		out = append(out, agent.CompletionMessage{
			Role:      string(models.RoleAssistant),
			Content:   text.String(),
			ToolCalls: calls,
		})
		if len(results) > 0 {
			out = append(out, agent.CompletionMessage{
				Role:        string(models.RoleTool),
				ToolResults: results,
			})
		}
		text.Reset()
		calls, results = nil, nil
	}

	for _, part := range msg.Parts {
		switch part.Type {
		case models.PartText:
			if len(calls) > 0 {
				flush()
			}
			text.WriteString(part.Text)
		case models.PartToolInvocation:
			inv := part.ToolInvocation
			if inv == nil || !inv.State.Terminal() {
				continue
			}
			input := inv.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			calls = append(calls, models.ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Input: input})
			result := models.ToolResult{ToolCallID: inv.ToolCallID, Content: string(inv.Output)}
			if inv.State == models.ToolStateOutputError {
				result.Content = inv.ErrorText
				result.IsError = true
			}
			results = append(results, result)
		}
	}
	flush()
	return out
}

// accumulator builds the assistant message from loop output and translates
// it to stream events.
type accumulator struct {
	parts []models.Part
	tools map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{tools: make(map[string]int)}
}

func (a *accumulator) appendText(kind models.PartType, delta string) {
	if n := len(a.parts); n > 0 && a.parts[n-1].Type == kind {
		a.parts[n-1].Text += delta
		return
	}
	a.parts = append(a.parts, models.Part{Type: kind, Text: delta})
}

func (a *accumulator) text(delta string) streams.Event {
	a.appendText(models.PartText, delta)
	return streams.Event{Type: streams.EventTextDelta, Delta: delta}
}

func (a *accumulator) reasoning(delta string) streams.Event {
	a.appendText(models.PartReasoning, delta)
	return streams.Event{Type: streams.EventReasoningDelta, Delta: delta}
}

// tool applies a tool lifecycle event and returns the stream events it
// produces.
func (a *accumulator) tool(ev *models.ToolEvent) []streams.Event {
	switch ev.Stage {
	case models.ToolEventRequested:
		input := ev.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		inv := &models.ToolInvocation{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Input: input}
		_ = inv.Advance(models.ToolStateInputAvailable)
		a.tools[ev.ToolCallID] = len(a.parts)
		a.parts = append(a.parts, models.Part{Type: models.PartToolInvocation, ToolInvocation: inv})
		return []streams.Event{{
			Type:       streams.EventToolInputAvailable,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			Input:      input,
		}}

	case models.ToolEventSucceeded, models.ToolEventAuthRequired:
		output := toolOutput(ev.Output)
		if inv := a.invocation(ev.ToolCallID); inv != nil && inv.Advance(models.ToolStateOutputAvailable) == nil {
			inv.Output = output
		}
		events := []streams.Event{{
			Type:       streams.EventToolOutputAvailable,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			Output:     output,
		}}
		if ev.Stage == models.ToolEventAuthRequired && ev.Auth != nil {
			auth := *ev.Auth
			events = append(events, streams.Event{
				Type:       streams.EventAuthRequired,
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				Auth:       &auth,
			})
		}
		return events

	case models.ToolEventFailed:
		if inv := a.invocation(ev.ToolCallID); inv != nil && inv.Advance(models.ToolStateOutputError) == nil {
			inv.ErrorText = ev.Error
		}
		return []streams.Event{{
			Type:       streams.EventToolOutputError,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			ErrorText:  ev.Error,
		}}
	}
	return nil
}

func (a *accumulator) invocation(callID string) *models.ToolInvocation {
	idx, ok := a.tools[callID]
	if !ok {
		return nil
	}
	return a.parts[idx].ToolInvocation
}

// toolOutput keeps JSON tool output as-is and quotes anything else.
func toolOutput(content string) json.RawMessage {
	if json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}
	quoted, _ := json.Marshal(content)
	return quoted
}
