package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/conductor/pkg/models"
)

// LLMProvider defines the interface for language model backends.
//
// Implementations handle the specifics of one vendor API while presenting a
// unified streaming interface to the loop.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Multiple goroutines may
// call Complete() simultaneously for different turns.
//
// See Also:
//   - providers.OpenAIProvider
//   - providers.AnthropicProvider
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one model step.
//
// Example:
//
//	req := &CompletionRequest{
//	    Model:    "gpt-4o",
//	    System:   "You are a friendly assistant.",
//	    Messages: []CompletionMessage{{Role: "user", Content: "What's on my calendar?"}},
//	}
type CompletionRequest struct {
	// Model selects the vendor model. Empty uses the provider default.
	Model string `json:"model"`

	// System is the system prompt.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools is the catalog offered to the model for this step.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the generated response. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// EnableThinking requests a reasoning stream where supported.
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// ThinkingBudgetTokens is the reasoning budget when EnableThinking is set.
	ThinkingBudgetTokens int `json:"thinking_budget_tokens,omitempty"`
}

// CompletionMessage is one message of model input.
//
// Role values: "user", "assistant", "tool"
type CompletionMessage struct {
	Role string `json:"role"`

	// Content is the text content (may be empty for tool-only messages).
	Content string `json:"content,omitempty"`

	// ToolCalls are tool requests made by the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults answer the previous assistant message's tool calls.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is a single element of a streaming model response.
//
// Processing Example:
//
//	for chunk := range chunks {
//	    switch {
//	    case chunk.Error != nil:
//	        return chunk.Error
//	    case chunk.ToolCall != nil:
//	        calls = append(calls, *chunk.ToolCall)
//	    case chunk.Text != "":
//	        fmt.Print(chunk.Text)
//	    }
//	}
type CompletionChunk struct {
	// Text contains partial response text.
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream has completed successfully.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// Thinking contains reasoning text.
	Thinking string `json:"thinking,omitempty"`

	ThinkingStart bool `json:"thinking_start,omitempty"`
	ThinkingEnd   bool `json:"thinking_end,omitempty"`

	// Token counts are only populated on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`

	// Reasoning models stream thinking and are not offered tools.
	Reasoning bool `json:"reasoning,omitempty"`
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Echo struct{}
//
//	func (Echo) Name() string        { return "echo" }
//	func (Echo) Description() string { return "Repeats its input" }
//	func (Echo) Schema() json.RawMessage {
//	    return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
//	}
//	func (Echo) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    return &ToolResult{Content: string(params)}, nil
//	}
type Tool interface {
	// Name returns the function name offered to the model.
	Name() string

	// Description helps the model decide when to call the tool.
	Description() string

	// Schema returns the JSON Schema of the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution. Failures are
// reported with IsError so the model can react to them.
type ToolResult struct {
	// Content is the tool's output as sent back to the model.
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`

	// Auth is set when the user must authorize an integration first.
	Auth *models.AuthChallenge `json:"auth,omitempty"`
}

// Usage aggregates token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// FinishReason explains why a loop ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishStepLimit FinishReason = "step_limit"
	FinishError     FinishReason = "error"
	FinishCanceled  FinishReason = "canceled"
)

// StepResult is the telemetry of one completed model step.
type StepResult struct {
	Step        int                 `json:"step"`
	Text        string              `json:"text,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
	// FinishReason is "tool_calls" when the step requested tools, else "stop".
	FinishReason string        `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Duration     time.Duration `json:"duration"`
}

// Finish is the final chunk of a loop run.
type Finish struct {
	Reason FinishReason `json:"reason"`
	Steps  int          `json:"steps"`
	Usage  Usage        `json:"usage"`
}

// ResponseChunk is one element of the loop's output stream. Consumers should
// check each field.
type ResponseChunk struct {
	Text          string            `json:"text,omitempty"`
	Thinking      string            `json:"thinking,omitempty"`
	ThinkingStart bool              `json:"thinking_start,omitempty"`
	ThinkingEnd   bool              `json:"thinking_end,omitempty"`
	ToolEvent     *models.ToolEvent `json:"tool_event,omitempty"`
	Step          *StepResult       `json:"step,omitempty"`
	Finish        *Finish           `json:"finish,omitempty"`
	Error         error             `json:"-"`
}
