package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/composio"
)

// Backend executes actions on behalf of users.
type Backend interface {
	ExecuteAction(ctx context.Context, action, userID string, args json.RawMessage) (*composio.ActionResult, error)
}

// Action declares one external capability.
type Action struct {
	// Name is the tool name offered to the model, e.g. "gmailSendEmail".
	Name string
	// Integration is the catalog name the action needs, or "" when the
	// action works without a user connection.
	Integration string
	// AuthTool is the tool that connects Integration.
	AuthTool string
	// BackendAction is the backend's action slug, e.g. "GMAIL_SEND_EMAIL".
	BackendAction string
	Description   string
	// Input is a zero value of the input struct; its schema is reflected.
	Input any
	// SuccessMessage is returned with the backend data on success.
	SuccessMessage string
}

// Adapter exposes an Action as an agent.Tool bound to one user.
type Adapter struct {
	action  Action
	schema  json.RawMessage
	backend Backend
	userID  string
	output  func(agent.Notice)
	logger  *slog.Logger
}

// NewAdapter binds action to the user in binding.
func NewAdapter(action Action, schema json.RawMessage, backend Backend, binding agent.Binding, logger *slog.Logger) *Adapter {
	if len(schema) == 0 {
		schema = ReflectSchema(action.Input)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		action:  action,
		schema:  schema,
		backend: backend,
		userID:  bindingUserID(binding),
		output:  binding.Output,
		logger:  logger,
	}
}

func (a *Adapter) Name() string            { return a.action.Name }
func (a *Adapter) Description() string     { return a.action.Description }
func (a *Adapter) Schema() json.RawMessage { return a.schema }

// Execute runs the action. Failures are reported in the result, never as
// an error.
func (a *Adapter) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return a.Run(ctx, params).ToolResult(), nil
}

// Run validates params, calls the backend and converts the response.
func (a *Adapter) Run(ctx context.Context, params json.RawMessage) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("tool adapter panicked",
				"tool", a.action.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			out = Err(apperr.KindToolExecutionFailed, fmt.Sprintf("panic: %v", r), "❌ **Error**\n\nThe tool failed unexpectedly.")
		}
	}()

	if err := Validate(a.schema, params); err != nil {
		return Err(apperr.KindBadRequest, err.Error(), "❌ **Invalid input**\n\n"+err.Error())
	}
	if a.userID == "" {
		return Err(apperr.KindUnauthorized, "User not authenticated", "❌ **Error**\n\nUser not authenticated")
	}
	if a.backend == nil {
		kind, message := Classify(composio.ErrMissingAPIKey, a.action.AuthTool)
		return Err(kind, composio.ErrMissingAPIKey.Error(), message)
	}

	if a.output != nil {
		a.output(agent.Notice{Tool: a.action.Name, Text: "Running " + a.action.BackendAction})
	}
	result, err := a.backend.ExecuteAction(ctx, a.action.BackendAction, a.userID, normalizeParams(params))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Err(apperr.KindToolTimeout, err.Error(), "❌ **Error**\n\nThe request timed out. Please try again.")
		}
		a.logger.Warn("backend action failed",
			"tool", a.action.Name,
			"action", a.action.BackendAction,
			"error", err)
		kind, message := Classify(err, a.action.AuthTool)
		return Err(kind, err.Error(), message)
	}
	if result == nil {
		kind, message := Classify(fmt.Errorf("%s returned a malformed response", a.action.BackendAction), a.action.AuthTool)
		return Err(kind, "empty response", message)
	}
	if !result.Successful {
		cause := strings.TrimSpace(result.Error)
		if cause == "" {
			cause = a.action.BackendAction + " failed"
		}
		kind, message := Classify(errors.New(cause), a.action.AuthTool)
		return Err(kind, cause, message)
	}

	message := a.action.SuccessMessage
	if message == "" {
		message = a.action.Name + " completed successfully"
	}
	var data any
	if len(result.Data) > 0 {
		data = result.Data
	}
	return Ok(message, data)
}

func bindingUserID(binding agent.Binding) string {
	if binding.User != nil && binding.User.ID != "" {
		return binding.User.ID
	}
	return binding.UserID
}

func normalizeParams(params json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(params))) == 0 {
		return json.RawMessage(`{}`)
	}
	return params
}
