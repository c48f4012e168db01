package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/conductor/pkg/models"
)

func staticFactory(name string) ToolFactory {
	return func(b Binding) Tool {
		return &testTool{
			name: name,
			execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				return &ToolResult{Content: name + ":" + b.UserID}, nil
			},
		}
	}
}

func TestToolRegistry_RegisterAndSnapshot(t *testing.T) {
	r := NewToolRegistry()
	r.Register("GMAIL_SEND_EMAIL", staticFactory("GMAIL_SEND_EMAIL"), "Gmail", "GMAIL_SEND_EMAIL")
	r.Register("authenticateGmail", staticFactory("authenticateGmail"), "Gmail", "")
	r.Register("webSearch", staticFactory("webSearch"), "", "")

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := strings.Join(r.Names(), ","); got != "GMAIL_SEND_EMAIL,authenticateGmail,webSearch" {
		t.Errorf("Names() = %s", got)
	}

	gmail := r.ByIntegration("Gmail")
	if len(gmail) != 2 {
		t.Fatalf("ByIntegration(Gmail) = %d entries, want 2", len(gmail))
	}

	reg, ok := r.Get("GMAIL_SEND_EMAIL")
	if !ok || reg.Action != "GMAIL_SEND_EMAIL" || reg.Integration != "Gmail" {
		t.Errorf("Get() = %+v, %v", reg, ok)
	}

	snapshot := r.Snapshot()
	snapshot[0].Name = "mutated"
	if _, ok := r.Get("mutated"); ok {
		t.Error("snapshot should be a copy")
	}
}

func TestToolRegistry_LastWriterWins(t *testing.T) {
	r := NewToolRegistry()
	r.Register("dup", staticFactory("first"), "A", "a")
	r.Register("dup", staticFactory("second"), "B", "b")

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	reg, _ := r.Get("dup")
	if reg.Integration != "B" {
		t.Errorf("Integration = %s, want B", reg.Integration)
	}
	tool := reg.Factory(Binding{})
	if tool.Name() != "second" {
		t.Errorf("factory built %s, want second", tool.Name())
	}
}

func TestToolRegistry_MarkLoaded(t *testing.T) {
	r := NewToolRegistry()
	if r.IsLoaded() {
		t.Fatal("new registry should not be loaded")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.MarkLoaded() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("MarkLoaded() returned true %d times, want 1", winners)
	}
	if !r.IsLoaded() {
		t.Error("registry should be loaded")
	}
}

func TestToolRegistry_InstantiateAll(t *testing.T) {
	r := NewToolRegistry()
	r.Register("a", staticFactory("a"), "", "")
	r.Register("b", staticFactory("b"), "", "")
	r.Register("nilfactory", nil, "", "")
	r.Register("niltool", func(Binding) Tool { return nil }, "", "")

	set := r.InstantiateAll(Binding{UserID: "u1", ConversationID: "c1"})
	if got := strings.Join(set.Names(), ","); got != "a,b" {
		t.Fatalf("Names() = %s, want a,b", got)
	}

	res, err := set.Execute(context.Background(), models.ToolCall{ID: "1", Name: "b"}, time.Second)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Content != "b:u1" {
		t.Errorf("Content = %q, want bound user", res.Content)
	}
}

func TestToolset_ExecuteLimits(t *testing.T) {
	set := NewToolset(echoTool())

	tests := []struct {
		name     string
		call     models.ToolCall
		wantType ToolErrorType
		wantIs   error
	}{
		{
			name:     "name too long",
			call:     models.ToolCall{Name: strings.Repeat("x", MaxToolNameLength+1)},
			wantType: ToolErrorInvalidInput,
		},
		{
			name:     "params too large",
			call:     models.ToolCall{Name: "echo", Input: make(json.RawMessage, MaxToolParamsSize+1)},
			wantType: ToolErrorInvalidInput,
		},
		{
			name:     "unknown tool",
			call:     models.ToolCall{Name: "nope"},
			wantType: ToolErrorNotFound,
			wantIs:   ErrToolNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := set.Execute(context.Background(), tt.call, time.Second)
			toolErr, ok := GetToolError(err)
			if !ok {
				t.Fatalf("Execute() error = %v, want ToolError", err)
			}
			if toolErr.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", toolErr.Type, tt.wantType)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error %v should wrap %v", err, tt.wantIs)
			}
		})
	}
}

func TestToolset_ExecuteNilResult(t *testing.T) {
	set := NewToolset(&testTool{name: "quiet", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return nil, nil
	}})
	res, err := set.Execute(context.Background(), models.ToolCall{Name: "quiet"}, 0)
	if err != nil || res == nil {
		t.Fatalf("Execute() = %v, %v", res, err)
	}
}

func TestToolset_Tools(t *testing.T) {
	set := NewToolset(echoTool(), &testTool{name: "b"}, &testTool{name: "c"})

	if got := len(set.Tools(nil)); got != 3 {
		t.Errorf("Tools(nil) = %d, want 3", got)
	}
	if got := len(set.Tools([]string{})); got != 0 {
		t.Errorf("Tools([]) = %d, want 0", got)
	}
	got := set.Tools([]string{"c", "echo"})
	if len(got) != 2 || got[0].Name() != "c" || got[1].Name() != "echo" {
		t.Errorf("Tools(subset) = %v", got)
	}

	var nilSet *Toolset
	if nilSet.Tools(nil) != nil || nilSet.Names() != nil {
		t.Error("nil toolset should be empty")
	}
}
