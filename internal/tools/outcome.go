// Package tools adapts external capabilities to the agent's tool contract.
// Every adapter reports its result as an Outcome, so failures reach the
// model as data instead of aborting the turn.
package tools

import (
	"encoding/json"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/pkg/models"
)

// OutcomeKind tags an Outcome.
type OutcomeKind string

const (
	OutcomeOK           OutcomeKind = "ok"
	OutcomeAuthRequired OutcomeKind = "auth_required"
	OutcomeError        OutcomeKind = "error"
)

// Outcome is the result of one tool execution.
type Outcome struct {
	Kind    OutcomeKind
	Message string

	// Data is set for OutcomeOK.
	Data any

	// Auth is set for OutcomeAuthRequired.
	Auth *models.AuthChallenge

	// ErrKind and Err are set for OutcomeError.
	ErrKind apperr.Kind
	Err     string
}

// Ok reports success.
func Ok(message string, data any) Outcome {
	return Outcome{Kind: OutcomeOK, Message: message, Data: data}
}

// AuthRequired reports that the user must authorize integration at url.
func AuthRequired(url, integration, authTool, message string) Outcome {
	return Outcome{
		Kind:    OutcomeAuthRequired,
		Message: message,
		Auth: &models.AuthChallenge{
			URL:          url,
			Integration:  integration,
			AuthToolName: authTool,
		},
	}
}

// Err reports a failure. err is the raw cause; message is shown to the user.
func Err(kind apperr.Kind, err, message string) Outcome {
	if kind == "" {
		kind = apperr.KindToolExecutionFailed
	}
	return Outcome{Kind: OutcomeError, ErrKind: kind, Err: err, Message: message}
}

// Result is the JSON shape the model sees.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthData is the Data of a rendered OutcomeAuthRequired.
type AuthData struct {
	RequiresAuth    bool   `json:"requiresAuth"`
	AuthURL         string `json:"authUrl"`
	IntegrationName string `json:"integrationName"`
	AuthToolName    string `json:"authToolName,omitempty"`
}

// Result renders the outcome in the {success, message, data|error} shape.
func (o Outcome) Result() Result {
	switch o.Kind {
	case OutcomeOK:
		return Result{Success: true, Message: o.Message, Data: o.Data}
	case OutcomeAuthRequired:
		data := AuthData{RequiresAuth: true}
		if o.Auth != nil {
			data.AuthURL = o.Auth.URL
			data.IntegrationName = o.Auth.Integration
			data.AuthToolName = o.Auth.AuthToolName
		}
		return Result{Success: true, Message: o.Message, Data: data}
	default:
		return Result{Success: false, Message: o.Message, Error: o.Err}
	}
}

// ToolResult converts the outcome for the agent loop.
func (o Outcome) ToolResult() *agent.ToolResult {
	content, err := json.Marshal(o.Result())
	if err != nil {
		content, _ = json.Marshal(Result{Success: false, Message: o.Message, Error: err.Error()})
	}
	res := &agent.ToolResult{Content: string(content), IsError: o.Kind == OutcomeError}
	if o.Kind == OutcomeAuthRequired && o.Auth != nil {
		auth := *o.Auth
		res.Auth = &auth
	}
	return res
}
