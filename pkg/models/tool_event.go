package models

import (
	"encoding/json"
	"time"
)

// ToolEventStage describes the lifecycle stage of a tool invocation for observability.
type ToolEventStage string

const (
	ToolEventRequested    ToolEventStage = "requested"
	ToolEventStarted      ToolEventStage = "started"
	ToolEventSucceeded    ToolEventStage = "succeeded"
	ToolEventFailed       ToolEventStage = "failed"
	ToolEventAuthRequired ToolEventStage = "auth_required"
)

// ToolEvent represents a lifecycle event for a tool call including timing and results.
type ToolEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Stage      ToolEventStage  `json:"stage"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Auth       *AuthChallenge  `json:"auth,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// AuthChallenge asks the end user to authorize an integration before a tool
// for it can succeed.
type AuthChallenge struct {
	URL          string `json:"auth_url"`
	Integration  string `json:"integration"`
	AuthToolName string `json:"auth_tool_name,omitempty"`
}
