package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/conductor/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Toolset is the set of tools bound to one turn.
type Toolset struct {
	tools map[string]Tool
	order []string
}

// NewToolset builds a toolset from already bound tools.
func NewToolset(tools ...Tool) *Toolset {
	set := &Toolset{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if _, dup := set.tools[tool.Name()]; !dup {
			set.order = append(set.order, tool.Name())
		}
		set.tools[tool.Name()] = tool
	}
	return set
}

// Names returns the tool names in registration order.
func (s *Toolset) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Get returns the tool registered under name.
func (s *Toolset) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	tool, ok := s.tools[name]
	return tool, ok
}

// Tools returns the tools offered to the model. A nil active list selects
// every tool; an empty non-nil list selects none. Unknown names are ignored.
func (s *Toolset) Tools(active []string) []Tool {
	if s == nil {
		return nil
	}
	if active == nil {
		out := make([]Tool, 0, len(s.order))
		for _, name := range s.order {
			out = append(out, s.tools[name])
		}
		return out
	}
	out := make([]Tool, 0, len(active))
	for _, name := range active {
		if tool, ok := s.tools[name]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// Execute runs one tool call. A zero timeout disables the deadline.
//
// Unknown names return ErrToolNotFound, an exceeded deadline returns
// ErrToolTimeout and a panic returns ErrToolPanic, each wrapped in a
// *ToolError. Failures the tool reports itself come back as an IsError result.
func (s *Toolset) Execute(ctx context.Context, call models.ToolCall, timeout time.Duration) (result *ToolResult, err error) {
	if len(call.Name) > MaxToolNameLength {
		return nil, NewToolError(call.Name, fmt.Errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength)).
			WithType(ToolErrorInvalidInput).WithToolCallID(call.ID)
	}
	if len(call.Input) > MaxToolParamsSize {
		return nil, NewToolError(call.Name, fmt.Errorf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)).
			WithType(ToolErrorInvalidInput).WithToolCallID(call.ID)
	}

	tool, ok := s.Get(call.Name)
	if !ok {
		return nil, NewToolError(call.Name, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)).WithToolCallID(call.ID)
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result *ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v\n%s", ErrToolPanic, r, debug.Stack())}
			}
		}()
		res, execErr := tool.Execute(execCtx, call.Input)
		done <- outcome{result: res, err: execErr}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-execCtx.Done():
		out.err = execCtx.Err()
	}

	if out.err != nil {
		if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
		}
		return nil, NewToolError(call.Name, out.err).WithToolCallID(call.ID)
	}
	if out.result == nil {
		out.result = &ToolResult{}
	}
	return out.result, nil
}
