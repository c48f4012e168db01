package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/pkg/models"
)

const (
	// MaxResponseTextSize is the maximum size of accumulated step text (1MB).
	MaxResponseTextSize = 1 << 20

	// MaxToolCallsPerStep is the maximum number of tool calls in one step.
	MaxToolCallsPerStep = 100
)

// LoopConfig configures the agentic loop.
type LoopConfig struct {
	// MaxSteps caps the number of model steps per run. Reaching it ends the
	// run normally with FinishStepLimit.
	// Default: 15
	MaxSteps int

	// MaxTokens is the default max tokens for LLM responses
	// Default: 4096
	MaxTokens int

	// ToolTimeout bounds each tool call. 0 disables the deadline.
	// Default: 60s
	ToolTimeout time.Duration

	// DisableToolEvents disables streaming ToolEvent chunks
	DisableToolEvents bool

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxSteps:    15,
		MaxTokens:   4096,
		ToolTimeout: 60 * time.Second,
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		config = DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaults.MaxSteps
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ToolTimeout < 0 {
		cfg.ToolTimeout = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// AgenticLoop drives a multi-step tool-calling conversation.
//
// Each step streams one model completion. If the model requested tools they
// run one at a time in the order requested, their results are appended to
// the history and the next step begins. The run ends when a step requests
// no tools, when MaxSteps is reached, or on error or cancellation.
//
//	┌────────┐     ┌────────────────┐
//	│ Stream │────▶│ Execute Tools  │──┐
//	└────────┘     └────────────────┘  │
//	    ▲   │ no tool calls             │ results appended
//	    │   ▼                           │
//	    │ ┌──────────┐                  │
//	    │ │ Complete │                  │
//	    │ └──────────┘                  │
//	    └───────────────────────────────┘
type AgenticLoop struct {
	provider LLMProvider
	config   *LoopConfig
}

// NewAgenticLoop creates a loop over provider. If config is nil,
// DefaultLoopConfig is used.
func NewAgenticLoop(provider LLMProvider, config *LoopConfig) *AgenticLoop {
	return &AgenticLoop{
		provider: provider,
		config:   sanitizeLoopConfig(config),
	}
}

// RunRequest is the input of one loop run.
type RunRequest struct {
	Model  string
	System string

	// History is the conversation so far, ending with the inbound user message.
	History []CompletionMessage

	Tools *Toolset

	// ActiveTools restricts the tools offered to the model. nil offers every
	// tool in Tools; an empty slice offers none.
	ActiveTools []string

	EnableThinking       bool
	ThinkingBudgetTokens int
}

// loopState tracks one run.
type loopState struct {
	step     int
	messages []CompletionMessage
	usage    Usage
}

// Run executes the loop and streams results through a channel. The channel
// is closed after the Finish chunk. Cancelling ctx stops the run at the next
// send or model/tool call and finishes with FinishCanceled.
func (l *AgenticLoop) Run(ctx context.Context, req RunRequest) (<-chan *ResponseChunk, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if len(req.History) == 0 {
		return nil, &LoopError{Phase: PhaseInit, Message: "history is empty"}
	}

	chunks := make(chan *ResponseChunk, 64)
	go func() {
		defer close(chunks)
		l.run(ctx, req, chunks)
	}()
	return chunks, nil
}

func (l *AgenticLoop) run(ctx context.Context, req RunRequest, chunks chan<- *ResponseChunk) {
	state := &loopState{
		messages: append([]CompletionMessage(nil), req.History...),
	}
	tools := req.Tools.Tools(req.ActiveTools)
	if !l.provider.SupportsTools() {
		tools = nil
	}

	finish := func(reason FinishReason, err error) {
		if err != nil {
			l.config.Metrics.RecordError("agent", string(reason))
			send(ctx, chunks, &ResponseChunk{Error: err})
		}
		l.config.Metrics.RecordAgentSteps(string(reason), state.step)
		deliverFinish(ctx, chunks, &ResponseChunk{Finish: &Finish{Reason: reason, Steps: state.step, Usage: state.usage}})
	}

	for state.step < l.config.MaxSteps {
		if ctx.Err() != nil {
			finish(FinishCanceled, nil)
			return
		}
		state.step++

		stepCtx, span := l.config.Tracer.TraceAgentStep(ctx, state.step)
		result, err := l.step(stepCtx, req, state, tools, chunks)
		if err != nil {
			l.config.Tracer.RecordError(span, err)
		}
		span.End()

		if err != nil {
			if ctx.Err() != nil {
				finish(FinishCanceled, nil)
				return
			}
			finish(FinishError, err)
			return
		}

		l.logStep(ctx, result)
		if !send(ctx, chunks, &ResponseChunk{Step: result}) {
			finish(FinishCanceled, nil)
			return
		}
		if len(result.ToolCalls) == 0 {
			finish(FinishStop, nil)
			return
		}
	}

	finish(FinishStepLimit, nil)
}

// step runs one model completion and its tool calls.
func (l *AgenticLoop) step(ctx context.Context, req RunRequest, state *loopState, tools []Tool, chunks chan<- *ResponseChunk) (*StepResult, error) {
	started := time.Now()

	text, toolCalls, usage, err := l.streamPhase(ctx, req, state, tools, chunks)
	if err != nil {
		return nil, &LoopError{Phase: PhaseStream, Step: state.step, Cause: err}
	}
	state.usage.Add(usage)

	result := &StepResult{
		Step:         state.step,
		Text:         text,
		ToolCalls:    toolCalls,
		FinishReason: "stop",
		Usage:        usage,
	}
	state.messages = append(state.messages, CompletionMessage{
		Role:      string(models.RoleAssistant),
		Content:   text,
		ToolCalls: toolCalls,
	})

	if len(toolCalls) > 0 {
		result.FinishReason = "tool_calls"
		results, err := l.executeToolsPhase(ctx, req.Tools, toolCalls, chunks)
		if err != nil {
			return nil, &LoopError{Phase: PhaseExecuteTools, Step: state.step, Cause: err}
		}
		result.ToolResults = results
		state.messages = append(state.messages, CompletionMessage{
			Role:        string(models.RoleTool),
			ToolResults: results,
		})
	}

	result.Duration = time.Since(started)
	return result, nil
}

func (l *AgenticLoop) streamPhase(ctx context.Context, req RunRequest, state *loopState, tools []Tool, chunks chan<- *ResponseChunk) (string, []models.ToolCall, Usage, error) {
	completion, err := l.provider.Complete(ctx, &CompletionRequest{
		Model:                req.Model,
		System:               req.System,
		Messages:             state.messages,
		Tools:                tools,
		MaxTokens:            l.config.MaxTokens,
		EnableThinking:       req.EnableThinking,
		ThinkingBudgetTokens: req.ThinkingBudgetTokens,
	})
	if err != nil {
		return "", nil, Usage{}, err
	}

	var (
		toolCalls   []models.ToolCall
		textBuilder strings.Builder
		usage       Usage
	)
	// Drain the provider stream on early return so its goroutine can exit.
	defer func() {
		for range completion {
		}
	}()

	for chunk := range completion {
		if chunk.Error != nil {
			return "", nil, usage, chunk.Error
		}

		if chunk.ThinkingStart && !send(ctx, chunks, &ResponseChunk{ThinkingStart: true}) {
			return "", nil, usage, ctx.Err()
		}
		if chunk.Thinking != "" && !send(ctx, chunks, &ResponseChunk{Thinking: chunk.Thinking}) {
			return "", nil, usage, ctx.Err()
		}
		if chunk.ThinkingEnd && !send(ctx, chunks, &ResponseChunk{ThinkingEnd: true}) {
			return "", nil, usage, ctx.Err()
		}

		if chunk.Text != "" {
			if textBuilder.Len()+len(chunk.Text) > MaxResponseTextSize {
				return "", nil, usage, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
			}
			textBuilder.WriteString(chunk.Text)
			if !send(ctx, chunks, &ResponseChunk{Text: chunk.Text}) {
				return "", nil, usage, ctx.Err()
			}
		}

		if chunk.ToolCall != nil {
			if len(toolCalls) >= MaxToolCallsPerStep {
				return "", nil, usage, fmt.Errorf("tool calls exceed maximum of %d per step", MaxToolCallsPerStep)
			}
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}

		usage.InputTokens += chunk.InputTokens
		usage.OutputTokens += chunk.OutputTokens
	}

	return textBuilder.String(), toolCalls, usage, ctx.Err()
}

// executeToolsPhase runs the tool calls strictly in order. Tool failures
// become error results for the model; only cancellation aborts the phase.
func (l *AgenticLoop) executeToolsPhase(ctx context.Context, tools *Toolset, calls []models.ToolCall, chunks chan<- *ResponseChunk) ([]models.ToolResult, error) {
	results := make([]models.ToolResult, 0, len(calls))

	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		started := time.Now()
		l.emitToolEvent(ctx, chunks, &models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Stage:      models.ToolEventRequested,
			Input:      call.Input,
		})
		l.emitToolEvent(ctx, chunks, &models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Stage:      models.ToolEventStarted,
			StartedAt:  started,
		})

		toolCtx, span := l.config.Tracer.TraceToolExecution(ctx, call.Name)
		res, err := tools.Execute(toolCtx, call, l.config.ToolTimeout)
		l.config.Tracer.RecordError(span, err)
		span.End()
		finished := time.Now()

		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		event := &models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			StartedAt:  started,
			FinishedAt: finished,
		}
		result := models.ToolResult{ToolCallID: call.ID}
		status := "success"

		switch {
		case err != nil:
			toolErr, _ := GetToolError(err)
			status = "error"
			if toolErr != nil && toolErr.Type == ToolErrorTimeout {
				status = "timeout"
			}
			result.Content = "Error: " + err.Error()
			result.IsError = true
			event.Stage = models.ToolEventFailed
			event.Error = err.Error()
			l.config.Logger.Warn("tool execution failed",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"error", err,
			)
		case res.Auth != nil:
			status = "auth_required"
			result.Content = res.Content
			result.IsError = res.IsError
			result.Auth = res.Auth
			event.Stage = models.ToolEventAuthRequired
			event.Output = res.Content
			event.Auth = res.Auth
		case res.IsError:
			status = "error"
			result.Content = res.Content
			result.IsError = true
			event.Stage = models.ToolEventFailed
			event.Error = res.Content
		default:
			result.Content = res.Content
			event.Stage = models.ToolEventSucceeded
			event.Output = res.Content
		}

		l.config.Metrics.RecordToolExecution(call.Name, status, finished.Sub(started).Seconds())
		l.emitToolEvent(ctx, chunks, event)
		results = append(results, result)
	}

	return results, nil
}

func (l *AgenticLoop) emitToolEvent(ctx context.Context, chunks chan<- *ResponseChunk, event *models.ToolEvent) {
	if l.config.DisableToolEvents || event == nil {
		return
	}
	send(ctx, chunks, &ResponseChunk{ToolEvent: event})
}

func (l *AgenticLoop) logStep(ctx context.Context, result *StepResult) {
	names := make([]string, len(result.ToolCalls))
	for i, call := range result.ToolCalls {
		names[i] = call.Name
	}
	failed := 0
	for _, res := range result.ToolResults {
		if res.IsError {
			failed++
		}
	}
	l.config.Logger.InfoContext(ctx, "agent step finished",
		"step", result.Step,
		"text", truncate(result.Text, 500),
		"tool_calls", names,
		"tool_results", len(result.ToolResults),
		"tool_errors", failed,
		"finish_reason", result.FinishReason,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration", result.Duration,
	)
}

// send delivers chunk unless ctx is done first.
// finishGrace bounds the Finish send once ctx is done and the consumer may
// have stopped reading.
const finishGrace = 2 * time.Second

// deliverFinish blocks until the consumer takes the Finish chunk. A slow
// consumer must still see it. After cancellation the send is attempted for
// at most finishGrace.
func deliverFinish(ctx context.Context, chunks chan<- *ResponseChunk, chunk *ResponseChunk) {
	if ctx.Err() == nil {
		select {
		case chunks <- chunk:
			return
		case <-ctx.Done():
		}
	}
	timer := time.NewTimer(finishGrace)
	defer timer.Stop()
	select {
	case chunks <- chunk:
	case <-timer.C:
	}
}

func send(ctx context.Context, chunks chan<- *ResponseChunk, chunk *ResponseChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
