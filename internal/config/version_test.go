package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name       string
		version    int
		wantReason string
	}{
		{name: "current", version: CurrentVersion},
		{name: "omitted", version: 0},
		{name: "negative", version: -1, wantReason: "invalid"},
		{name: "newer", version: CurrentVersion + 1, wantReason: "newer than this build"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", ve.Reason, tt.wantReason)
			}
		})
	}
}

func TestVersionError_Messages(t *testing.T) {
	var nilErr *VersionError
	if nilErr.Error() != "" {
		t.Fatal("expected empty string from nil VersionError")
	}
	newer := &VersionError{Version: 2, Current: 1, Reason: "newer than this build"}
	if !strings.Contains(newer.Error(), "upgrade conductor") {
		t.Fatalf("unexpected message %q", newer.Error())
	}
}
