package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// loopTestProvider allows control over LLM responses for loop testing.
type loopTestProvider struct {
	responses    [][]CompletionChunk
	currentCall  int32
	noTools      bool
	completeFunc func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	mu       sync.Mutex
	requests []*CompletionRequest
}

func (p *loopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.completeFunc != nil {
		return p.completeFunc(ctx, req)
	}

	call := int(atomic.AddInt32(&p.currentCall, 1)) - 1
	ch := make(chan *CompletionChunk, 10)

	go func() {
		defer close(ch)
		if call < len(p.responses) {
			for _, chunk := range p.responses[call] {
				select {
				case ch <- &chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (p *loopTestProvider) Name() string        { return "loop-test" }
func (p *loopTestProvider) Models() []Model     { return nil }
func (p *loopTestProvider) SupportsTools() bool { return !p.noTools }

func (p *loopTestProvider) calls() int {
	return int(atomic.LoadInt32(&p.currentCall))
}

func (p *loopTestProvider) request(i int) *CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// testTool is a Tool backed by a function.
type testTool struct {
	name     string
	execFunc func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (t *testTool) Name() string            { return t.name }
func (t *testTool) Description() string     { return "test tool " + t.name }
func (t *testTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t *testTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return t.execFunc(ctx, params)
}

func echoTool() *testTool {
	return &testTool{
		name: "echo",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			var p struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, err
			}
			return &ToolResult{Content: p.Text}, nil
		},
	}
}

func toolCallChunk(id, name, input string) CompletionChunk {
	return CompletionChunk{ToolCall: &models.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}}
}

func userHistory(text string) []CompletionMessage {
	return []CompletionMessage{{Role: "user", Content: text}}
}

type collected struct {
	text       string
	thinking   string
	events     []*models.ToolEvent
	steps      []*StepResult
	finish     *Finish
	errs       []error
	chunkCount int
}

func collect(t *testing.T, ch <-chan *ResponseChunk) collected {
	t.Helper()
	var out collected
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out.chunkCount++
			out.text += chunk.Text
			out.thinking += chunk.Thinking
			if chunk.ToolEvent != nil {
				out.events = append(out.events, chunk.ToolEvent)
			}
			if chunk.Step != nil {
				out.steps = append(out.steps, chunk.Step)
			}
			if chunk.Finish != nil {
				out.finish = chunk.Finish
			}
			if chunk.Error != nil {
				out.errs = append(out.errs, chunk.Error)
			}
		case <-timeout:
			t.Fatal("timed out waiting for loop to finish")
		}
	}
}

func TestAgenticLoop_DefaultConfig(t *testing.T) {
	loop := NewAgenticLoop(&loopTestProvider{}, nil)
	if loop.config.MaxSteps != 15 {
		t.Errorf("MaxSteps = %d, want 15", loop.config.MaxSteps)
	}
	if loop.config.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", loop.config.MaxTokens)
	}
	if loop.config.ToolTimeout != 60*time.Second {
		t.Errorf("ToolTimeout = %v, want 60s", loop.config.ToolTimeout)
	}
	if loop.config.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestAgenticLoop_SanitizesConfig(t *testing.T) {
	loop := NewAgenticLoop(&loopTestProvider{}, &LoopConfig{MaxSteps: -1, ToolTimeout: -time.Second})
	if loop.config.MaxSteps != 15 {
		t.Errorf("MaxSteps = %d, want 15", loop.config.MaxSteps)
	}
	if loop.config.ToolTimeout != 0 {
		t.Errorf("ToolTimeout = %v, want 0", loop.config.ToolTimeout)
	}
}

func TestAgenticLoop_RunValidation(t *testing.T) {
	if _, err := NewAgenticLoop(nil, nil).Run(context.Background(), RunRequest{History: userHistory("hi")}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("Run() error = %v, want ErrNoProvider", err)
	}

	_, err := NewAgenticLoop(&loopTestProvider{}, nil).Run(context.Background(), RunRequest{})
	var loopErr *LoopError
	if !errors.As(err, &loopErr) || loopErr.Phase != PhaseInit {
		t.Fatalf("Run() error = %v, want init LoopError", err)
	}
}

func TestAgenticLoop_NoToolCalls(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "Hello, "}, {Text: "how can I help?"}, {Done: true, InputTokens: 12, OutputTokens: 5}},
		},
	}

	ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
		Model:   "chat-model",
		System:  "be nice",
		History: userHistory("hi"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)

	if len(out.errs) > 0 {
		t.Fatalf("unexpected errors: %v", out.errs)
	}
	if out.text != "Hello, how can I help?" {
		t.Errorf("got text %q", out.text)
	}
	if out.finish == nil || out.finish.Reason != FinishStop || out.finish.Steps != 1 {
		t.Fatalf("finish = %+v, want stop after 1 step", out.finish)
	}
	if out.finish.Usage.InputTokens != 12 || out.finish.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", out.finish.Usage)
	}
	if len(out.steps) != 1 || out.steps[0].FinishReason != "stop" {
		t.Fatalf("steps = %+v", out.steps)
	}
	if provider.calls() != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls())
	}

	req := provider.request(0)
	if req.Model != "chat-model" || req.System != "be nice" || req.MaxTokens != 4096 {
		t.Errorf("request = %+v", req)
	}
}

func TestAgenticLoop_SingleToolCall(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{toolCallChunk("call-1", "echo", `{"text": "test"}`), {Done: true}},
			{{Text: "The tool returned: test"}, {Done: true}},
		},
	}

	ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
		History: userHistory("echo test"),
		Tools:   NewToolset(echoTool()),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)

	if out.text != "The tool returned: test" {
		t.Errorf("got text %q", out.text)
	}

	wantStages := []models.ToolEventStage{models.ToolEventRequested, models.ToolEventStarted, models.ToolEventSucceeded}
	if len(out.events) != len(wantStages) {
		t.Fatalf("got %d tool events, want %d", len(out.events), len(wantStages))
	}
	for i, stage := range wantStages {
		if out.events[i].Stage != stage {
			t.Errorf("event %d stage = %s, want %s", i, out.events[i].Stage, stage)
		}
	}
	if out.events[2].Output != "test" {
		t.Errorf("succeeded output = %q", out.events[2].Output)
	}

	if len(out.steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(out.steps))
	}
	if out.steps[0].FinishReason != "tool_calls" || len(out.steps[0].ToolResults) != 1 {
		t.Errorf("first step = %+v", out.steps[0])
	}
	if out.finish.Reason != FinishStop || out.finish.Steps != 2 {
		t.Errorf("finish = %+v", out.finish)
	}

	// The second request carries the assistant tool call and its result.
	second := provider.request(1)
	if len(second.Messages) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second.Messages))
	}
	if got := second.Messages[1]; got.Role != "assistant" || len(got.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", got)
	}
	if got := second.Messages[2]; got.Role != "tool" || got.ToolResults[0].Content != "test" || got.ToolResults[0].ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", got)
	}
}

func TestAgenticLoop_ToolsRunSequentially(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{
				toolCallChunk("call-1", "slow", `{}`),
				toolCallChunk("call-2", "fast", `{}`),
				toolCallChunk("call-3", "slow", `{}`),
				{Done: true},
			},
			{{Text: "done"}, {Done: true}},
		},
	}

	var (
		mu      sync.Mutex
		order   []string
		running int32
		overlap bool
	)
	track := func(name string, delay time.Duration) *testTool {
		return &testTool{
			name: name,
			execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				if atomic.AddInt32(&running, 1) > 1 {
					overlap = true
				}
				defer atomic.AddInt32(&running, -1)
				time.Sleep(delay)
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return &ToolResult{Content: name}, nil
			},
		}
	}

	ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
		History: userHistory("go"),
		Tools:   NewToolset(track("slow", 20*time.Millisecond), track("fast", 0)),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)

	if overlap {
		t.Error("tools ran concurrently")
	}
	if strings.Join(order, ",") != "slow,fast,slow" {
		t.Errorf("execution order = %v", order)
	}
	results := out.steps[0].ToolResults
	for i, want := range []string{"call-1", "call-2", "call-3"} {
		if results[i].ToolCallID != want {
			t.Errorf("result %d id = %s, want %s", i, results[i].ToolCallID, want)
		}
	}
}

func TestAgenticLoop_StepLimit(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			ch := make(chan *CompletionChunk, 2)
			ch <- &CompletionChunk{ToolCall: &models.ToolCall{ID: "c", Name: "echo", Input: json.RawMessage(`{"text":"again"}`)}}
			ch <- &CompletionChunk{Done: true}
			close(ch)
			return ch, nil
		},
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	ch, err := NewAgenticLoop(provider, &LoopConfig{MaxSteps: 3, Metrics: metrics}).Run(context.Background(), RunRequest{
		History: userHistory("loop forever"),
		Tools:   NewToolset(echoTool()),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)

	if len(out.errs) != 0 {
		t.Fatalf("step limit must not be an error: %v", out.errs)
	}
	if out.finish == nil || out.finish.Reason != FinishStepLimit || out.finish.Steps != 3 {
		t.Fatalf("finish = %+v, want step_limit after 3", out.finish)
	}
	if len(provider.requests) != 3 {
		t.Errorf("provider called %d times, want 3", len(provider.requests))
	}
	if got := testutil.ToFloat64(metrics.AgentSteps.WithLabelValues("step_limit")); got != 3 {
		t.Errorf("agent steps metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.ToolExecutionCounter.WithLabelValues("echo", "success")); got != 3 {
		t.Errorf("tool executions metric = %v, want 3", got)
	}
}

func TestAgenticLoop_ToolFailuresReachModel(t *testing.T) {
	tests := []struct {
		name      string
		call      CompletionChunk
		tools     *Toolset
		wantStage models.ToolEventStage
		wantText  string
	}{
		{
			name:      "unknown tool",
			call:      toolCallChunk("c1", "missing", `{}`),
			tools:     NewToolset(),
			wantStage: models.ToolEventFailed,
			wantText:  "tool not found",
		},
		{
			name: "tool returns error",
			call: toolCallChunk("c1", "broken", `{}`),
			tools: NewToolset(&testTool{name: "broken", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				return nil, errors.New("backend exploded")
			}}),
			wantStage: models.ToolEventFailed,
			wantText:  "backend exploded",
		},
		{
			name: "tool panics",
			call: toolCallChunk("c1", "panicky", `{}`),
			tools: NewToolset(&testTool{name: "panicky", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				panic("boom")
			}}),
			wantStage: models.ToolEventFailed,
			wantText:  "tool panicked",
		},
		{
			name: "tool reports error result",
			call: toolCallChunk("c1", "soft", `{}`),
			tools: NewToolset(&testTool{name: "soft", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				return &ToolResult{Content: "quota exhausted", IsError: true}, nil
			}}),
			wantStage: models.ToolEventFailed,
			wantText:  "quota exhausted",
		},
		{
			name: "tool needs authorization",
			call: toolCallChunk("c1", "gated", `{}`),
			tools: NewToolset(&testTool{name: "gated", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				return &ToolResult{
					Content: "connect gmail first",
					Auth:    &models.AuthChallenge{URL: "https://auth.example/x", Integration: "Gmail"},
				}, nil
			}}),
			wantStage: models.ToolEventAuthRequired,
			wantText:  "connect gmail first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &loopTestProvider{
				responses: [][]CompletionChunk{
					{tt.call, {Done: true}},
					{{Text: "handled"}, {Done: true}},
				},
			}
			ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
				History: userHistory("do it"),
				Tools:   tt.tools,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			out := collect(t, ch)

			if len(out.errs) != 0 {
				t.Fatalf("tool failures must not abort the loop: %v", out.errs)
			}
			if out.finish.Reason != FinishStop {
				t.Errorf("finish = %+v", out.finish)
			}
			last := out.events[len(out.events)-1]
			if last.Stage != tt.wantStage {
				t.Errorf("final stage = %s, want %s", last.Stage, tt.wantStage)
			}
			result := provider.request(1).Messages[2].ToolResults[0]
			if !strings.Contains(result.Content, tt.wantText) {
				t.Errorf("tool result = %q, want it to contain %q", result.Content, tt.wantText)
			}
			if tt.wantStage == models.ToolEventAuthRequired && (last.Auth == nil || result.Auth == nil) {
				t.Error("auth challenge not propagated")
			}
		})
	}
}

func TestAgenticLoop_ToolTimeout(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{toolCallChunk("c1", "sleepy", `{}`), {Done: true}},
			{{Text: "gave up"}, {Done: true}},
		},
	}
	sleepy := &testTool{name: "sleepy", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	ch, err := NewAgenticLoop(provider, &LoopConfig{ToolTimeout: 20 * time.Millisecond, Metrics: metrics}).Run(context.Background(), RunRequest{
		History: userHistory("wait"),
		Tools:   NewToolset(sleepy),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)

	result := out.steps[0].ToolResults[0]
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Errorf("result = %+v, want timeout error", result)
	}
	if got := testutil.ToFloat64(metrics.ToolExecutionCounter.WithLabelValues("sleepy", "timeout")); got != 1 {
		t.Errorf("timeout metric = %v, want 1", got)
	}
}

func TestAgenticLoop_ActiveTools(t *testing.T) {
	tools := NewToolset(echoTool(), &testTool{name: "other"})

	tests := []struct {
		name    string
		active  []string
		noTools bool
		want    int
	}{
		{name: "nil offers all", active: nil, want: 2},
		{name: "empty offers none", active: []string{}, want: 0},
		{name: "subset", active: []string{"echo", "unknown"}, want: 1},
		{name: "provider without tool support", active: nil, noTools: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &loopTestProvider{
				noTools:   tt.noTools,
				responses: [][]CompletionChunk{{{Text: "ok"}, {Done: true}}},
			}
			ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
				History:     userHistory("hi"),
				Tools:       tools,
				ActiveTools: tt.active,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			collect(t, ch)
			if got := len(provider.request(0).Tools); got != tt.want {
				t.Errorf("offered %d tools, want %d", got, tt.want)
			}
		})
	}
}

func TestAgenticLoop_Thinking(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{{
			{ThinkingStart: true},
			{Thinking: "let me think"},
			{ThinkingEnd: true},
			{Text: "answer"},
			{Done: true},
		}},
	}
	ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{
		History:              userHistory("why"),
		EnableThinking:       true,
		ThinkingBudgetTokens: 2048,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)
	if out.thinking != "let me think" || out.text != "answer" {
		t.Errorf("thinking = %q, text = %q", out.thinking, out.text)
	}
	if req := provider.request(0); !req.EnableThinking || req.ThinkingBudgetTokens != 2048 {
		t.Errorf("thinking not forwarded: %+v", req)
	}
}

func TestAgenticLoop_ProviderError(t *testing.T) {
	tests := []struct {
		name     string
		complete func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	}{
		{
			name: "complete fails",
			complete: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
				return nil, errors.New("provider unavailable")
			},
		},
		{
			name: "stream fails",
			complete: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
				ch := make(chan *CompletionChunk, 2)
				ch <- &CompletionChunk{Text: "partial"}
				ch <- &CompletionChunk{Error: errors.New("stream reset")}
				close(ch)
				return ch, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &loopTestProvider{completeFunc: tt.complete}
			ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{History: userHistory("hi")})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			out := collect(t, ch)

			if len(out.errs) != 1 {
				t.Fatalf("got %d errors, want 1", len(out.errs))
			}
			var loopErr *LoopError
			if !errors.As(out.errs[0], &loopErr) || loopErr.Phase != PhaseStream || loopErr.Step != 1 {
				t.Errorf("error = %v, want stream LoopError at step 1", out.errs[0])
			}
			if out.finish == nil || out.finish.Reason != FinishError {
				t.Errorf("finish = %+v, want error", out.finish)
			}
		})
	}
}

func TestAgenticLoop_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{toolCallChunk("c1", "block", `{}`), {Done: true}},
		},
	}
	block := &testTool{name: "block", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ch, err := NewAgenticLoop(provider, nil).Run(ctx, RunRequest{
		History: userHistory("hi"),
		Tools:   NewToolset(block),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	go func() {
		<-started
		cancel()
	}()
	out := collect(t, ch)

	if len(out.errs) != 0 {
		t.Errorf("cancellation must not surface as error: %v", out.errs)
	}
	if out.finish != nil && out.finish.Reason != FinishCanceled {
		t.Errorf("finish = %+v, want canceled", out.finish)
	}
	if provider.calls() != 1 {
		t.Errorf("provider called %d times after cancel, want 1", provider.calls())
	}
}

func TestAgenticLoop_DisableToolEvents(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{toolCallChunk("c1", "echo", `{"text":"x"}`), {Done: true}},
			{{Text: "ok"}, {Done: true}},
		},
	}
	ch, err := NewAgenticLoop(provider, &LoopConfig{DisableToolEvents: true}).Run(context.Background(), RunRequest{
		History: userHistory("hi"),
		Tools:   NewToolset(echoTool()),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := collect(t, ch)
	if len(out.events) != 0 {
		t.Errorf("got %d tool events, want 0", len(out.events))
	}
	if len(out.steps) != 2 {
		t.Errorf("got %d steps, want 2", len(out.steps))
	}
}

func TestAgenticLoop_FinishReachesSlowConsumer(t *testing.T) {
	response := make([]CompletionChunk, 0, 101)
	for i := 0; i < 100; i++ {
		response = append(response, CompletionChunk{Text: "x"})
	}
	response = append(response, CompletionChunk{Done: true})
	provider := &loopTestProvider{responses: [][]CompletionChunk{response}}

	ch, err := NewAgenticLoop(provider, nil).Run(context.Background(), RunRequest{History: userHistory("hi")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Let the buffer fill before reading anything.
	time.Sleep(50 * time.Millisecond)
	var (
		text   strings.Builder
		finish *Finish
	)
	for chunk := range ch {
		time.Sleep(time.Millisecond)
		text.WriteString(chunk.Text)
		if chunk.Finish != nil {
			finish = chunk.Finish
		}
	}

	if text.Len() != 100 {
		t.Errorf("got %d text bytes, want 100", text.Len())
	}
	if finish == nil || finish.Reason != FinishStop {
		t.Fatalf("finish = %+v, want stop", finish)
	}
}
