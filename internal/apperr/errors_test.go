package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindNotConfigured, http.StatusBadRequest},
		{KindConnectionTimeout, http.StatusGatewayTimeout},
		{KindChannelUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := New(KindForbidden, "chat", "")
	wrapped := fmt.Errorf("delete: %w", base)

	if KindOf(wrapped) != KindForbidden {
		t.Fatalf("KindOf = %s", KindOf(wrapped))
	}
	if !Is(wrapped, KindForbidden) {
		t.Fatal("Is should match wrapped kind")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindAuthInitiationFailed, "integrations", cause, "")

	if !errors.Is(err, cause) {
		t.Fatal("Unwrap should expose cause")
	}
	if !strings.Contains(err.Error(), "refused") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if err.Code() != "auth_initiation_failed:integrations" {
		t.Fatalf("Code() = %q", err.Code())
	}
	if err.UserMessage() == "" {
		t.Fatal("expected default user message")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(KindConnectionTimeout) {
		t.Fatal("connection timeout should be retryable")
	}
	if Retryable(KindForbidden) {
		t.Fatal("forbidden should not be retryable")
	}
}
