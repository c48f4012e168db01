package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Visibility controls who may read a conversation.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PartType discriminates message parts.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartFile           PartType = "file"
	PartToolInvocation PartType = "tool-invocation"
)

// Part is one element of a message body. Exactly one of the payload fields
// is meaningful for a given Type.
type Part struct {
	Type PartType `json:"type"`

	// Text is set for text and reasoning parts.
	Text string `json:"text,omitempty"`

	// File attachment fields.
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`

	ToolInvocation *ToolInvocation `json:"tool_invocation,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ToolInvocationState is the lifecycle state of a tool call inside a message.
type ToolInvocationState string

const (
	ToolStateInputStreaming  ToolInvocationState = "input-streaming"
	ToolStateInputAvailable  ToolInvocationState = "input-available"
	ToolStateOutputAvailable ToolInvocationState = "output-available"
	ToolStateOutputError     ToolInvocationState = "output-error"
)

func (s ToolInvocationState) rank() int {
	switch s {
	case ToolStateInputStreaming:
		return 0
	case ToolStateInputAvailable:
		return 1
	case ToolStateOutputAvailable, ToolStateOutputError:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are allowed.
func (s ToolInvocationState) Terminal() bool {
	return s == ToolStateOutputAvailable || s == ToolStateOutputError
}

// ToolInvocation records one tool call and its result.
type ToolInvocation struct {
	ToolCallID string              `json:"tool_call_id"`
	ToolName   string              `json:"tool_name"`
	Input      json.RawMessage     `json:"input,omitempty"`
	State      ToolInvocationState `json:"state"`
	Output     json.RawMessage     `json:"output,omitempty"`
	ErrorText  string              `json:"error_text,omitempty"`
}

// Advance moves the invocation to next. Transitions only go forward one
// stage at a time, and a terminal state is final.
func (t *ToolInvocation) Advance(next ToolInvocationState) error {
	if t == nil {
		return fmt.Errorf("tool invocation is nil")
	}
	from, to := t.State.rank(), next.rank()
	if to < 0 {
		return fmt.Errorf("unknown tool invocation state %q", next)
	}
	if t.State == "" {
		if next.Terminal() {
			return fmt.Errorf("tool invocation cannot start in %s", next)
		}
		t.State = next
		return nil
	}
	if t.State.Terminal() || to != from+1 {
		return fmt.Errorf("invalid tool invocation transition %s -> %s", t.State, next)
	}
	t.State = next
	return nil
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Parts          []Part    `json:"parts"`
	Attachments    []Part    `json:"attachments,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range m.Parts {
		if part.Type != PartText || part.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Parts = cloneParts(m.Parts)
	out.Attachments = cloneParts(m.Attachments)
	return &out
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, part := range parts {
		out[i] = part
		if part.ToolInvocation != nil {
			inv := *part.ToolInvocation
			inv.Input = append(json.RawMessage(nil), part.ToolInvocation.Input...)
			inv.Output = append(json.RawMessage(nil), part.ToolInvocation.Output...)
			out[i].ToolInvocation = &inv
		}
	}
	return out
}

// StreamRecord binds a resumable stream id to its conversation.
type StreamRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Content    string         `json:"content"`
	IsError    bool           `json:"is_error,omitempty"`
	Auth       *AuthChallenge `json:"auth,omitempty"`
}
