// Package streams carries turn output to clients. A durable channel records
// every event so a reconnecting client can replay the turn; a passthrough
// channel forwards events directly and cannot be resumed.
package streams

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/conductor/pkg/models"
)

// EventType is the wire type of a stream part.
type EventType string

const (
	EventStart               EventType = "start"
	EventTextDelta           EventType = "text-delta"
	EventReasoningDelta      EventType = "reasoning-delta"
	EventToolInputAvailable  EventType = "tool-input-available"
	EventToolOutputAvailable EventType = "tool-output-available"
	EventToolOutputError     EventType = "tool-output-error"
	EventAuthRequired        EventType = "auth-required"
	EventDataNotice          EventType = "data-notice"
	EventFinish              EventType = "finish"
	EventError               EventType = "error"
)

// DefaultErrorText is sent to the client when a turn fails.
const DefaultErrorText = "Oops, an error occurred!"

var (
	// ErrNotResumable is returned by channels that keep no history.
	ErrNotResumable = errors.New("stream is not resumable")

	// ErrStreamNotFound is returned when nothing is recorded for a stream.
	ErrStreamNotFound = errors.New("stream not found")
)

// Event is one part of the UI message stream.
type Event struct {
	Type         EventType             `json:"type"`
	MessageID    string                `json:"messageId,omitempty"`
	Delta        string                `json:"delta,omitempty"`
	ToolCallID   string                `json:"toolCallId,omitempty"`
	ToolName     string                `json:"toolName,omitempty"`
	Input        json.RawMessage       `json:"input,omitempty"`
	Output       json.RawMessage       `json:"output,omitempty"`
	ErrorText    string                `json:"errorText,omitempty"`
	Auth         *models.AuthChallenge `json:"auth,omitempty"`
	Data         json.RawMessage       `json:"data,omitempty"`
	Transient    bool                  `json:"transient,omitempty"`
	FinishReason string                `json:"finishReason,omitempty"`
}

// Terminal reports whether no event can follow e.
func (e Event) Terminal() bool {
	return e.Type == EventFinish || e.Type == EventError
}

// Emit delivers one event. It fails when the event can no longer be
// delivered or recorded.
type Emit func(Event) error

// Producer generates a turn's events. If it returns without emitting a
// terminal event the channel appends one: finish on success, error otherwise.
type Producer func(ctx context.Context, emit Emit) error

// Channel delivers producer output to the client that started the turn.
type Channel interface {
	// Write starts produce and returns the events for the caller's client.
	// The returned channel is closed after the terminal event.
	Write(ctx context.Context, streamID string, produce Producer) (<-chan Event, error)

	// Resume replays a stream from its first event.
	Resume(ctx context.Context, streamID string) (<-chan Event, error)

	Resumable() bool
	Close() error
}
