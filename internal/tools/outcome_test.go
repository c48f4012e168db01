package tools

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/conductor/internal/apperr"
)

func TestOutcomeResult(t *testing.T) {
	tests := []struct {
		name        string
		outcome     Outcome
		wantSuccess bool
		wantIsError bool
		wantAuth    bool
	}{
		{name: "ok", outcome: Ok("done", map[string]int{"n": 1}), wantSuccess: true},
		{name: "auth required", outcome: AuthRequired("https://auth.example/x", "Gmail", "authenticateGmail", "connect"), wantSuccess: true, wantAuth: true},
		{name: "error", outcome: Err(apperr.KindToolExecutionFailed, "boom", "❌ **Error**\n\nboom"), wantIsError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.outcome.ToolResult()
			if res.IsError != tt.wantIsError {
				t.Fatalf("IsError = %v, want %v", res.IsError, tt.wantIsError)
			}
			if (res.Auth != nil) != tt.wantAuth {
				t.Fatalf("Auth = %+v, want present=%v", res.Auth, tt.wantAuth)
			}

			var decoded map[string]any
			if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
				t.Fatalf("content is not JSON: %v", err)
			}
			if decoded["success"] != tt.wantSuccess {
				t.Fatalf("success = %v, want %v", decoded["success"], tt.wantSuccess)
			}
		})
	}
}

func TestAuthRequiredDataShape(t *testing.T) {
	res := AuthRequired("https://auth.example/x", "Gmail", "authenticateGmail", "connect").ToolResult()

	var decoded struct {
		Success bool     `json:"success"`
		Data    AuthData `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Data.RequiresAuth {
		t.Fatal("expected requiresAuth")
	}
	if decoded.Data.AuthURL != "https://auth.example/x" || decoded.Data.IntegrationName != "Gmail" {
		t.Fatalf("unexpected data %+v", decoded.Data)
	}
	if res.Auth.URL != "https://auth.example/x" || res.Auth.AuthToolName != "authenticateGmail" {
		t.Fatalf("unexpected challenge %+v", res.Auth)
	}
}

func TestErrDefaultsKind(t *testing.T) {
	out := Err("", "x", "y")
	if out.ErrKind != apperr.KindToolExecutionFailed {
		t.Fatalf("ErrKind = %q", out.ErrKind)
	}
	if out.Result().Error != "x" {
		t.Fatalf("Error = %q", out.Result().Error)
	}
}
