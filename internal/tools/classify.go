package tools

import (
	"errors"
	"strings"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/composio"
)

// Classify turns a backend failure into an error kind and the guidance
// shown to the user. authTool names the tool that reconnects the
// integration, if there is one.
func Classify(err error, authTool string) (apperr.Kind, string) {
	if err == nil {
		return apperr.KindToolExecutionFailed, "❌ **Error**\n\nUnknown error"
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := apperr.KindToolExecutionFailed
	guidance := msg
	switch {
	case errors.Is(err, composio.ErrMissingAPIKey) || strings.Contains(msg, "COMPOSIO_API_KEY"):
		kind = apperr.KindNotConfigured
		guidance = "Composio API key is not configured. Please set the COMPOSIO_API_KEY environment variable to enable integrations."
	case strings.Contains(lower, "not found"):
		guidance = msg + "\n\nThis might indicate:\n• The integration is not properly connected\n• The tool name is incorrect\n• You need to authenticate with the service first"
		if authTool != "" {
			guidance += "\n\nCall " + authTool + " to connect the account, then retry."
		}
	case strings.Contains(lower, "decode") || strings.Contains(lower, "malformed") || strings.Contains(lower, "unexpected response"):
		guidance = msg + "\n\nThis indicates a problem with the integration setup. The tool exists but its response is malformed. Check your API key and integration configuration."
	case apperr.Is(err, apperr.KindUnauthorized):
		kind = apperr.KindUnauthorized
	}
	return kind, "❌ **Error**\n\n" + guidance
}
