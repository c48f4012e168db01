package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/pkg/models"
)

const (
	// MaxTextLength bounds a single inbound text part, in characters.
	MaxTextLength = 2000

	// MaxRequestBytes bounds the turn request body.
	MaxRequestBytes = 1 << 20
)

var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// TurnRequest is the body of POST /api/chat.
type TurnRequest struct {
	ID                     string            `json:"id"`
	Message                InboundMessage    `json:"message"`
	SelectedChatModel      string            `json:"selectedChatModel"`
	SelectedVisibilityType models.Visibility `json:"selectedVisibilityType"`
}

// InboundMessage is the user message of a turn.
type InboundMessage struct {
	ID    string        `json:"id"`
	Role  models.Role   `json:"role"`
	Parts []models.Part `json:"parts"`
}

// DecodeTurnRequest reads and validates a turn request. Any failure is a
// bad_request error.
func DecodeTurnRequest(r io.Reader, allowedModels []string) (*TurnRequest, error) {
	var req TurnRequest
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "api", err, "")
	}
	if err := req.Validate(allowedModels); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the request shape. An empty allowedModels accepts any
// non-empty model id.
func (r *TurnRequest) Validate(allowedModels []string) error {
	if err := r.validate(allowedModels); err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "api", err, "")
	}
	return nil
}

func (r *TurnRequest) validate(allowedModels []string) error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if _, err := uuid.Parse(r.Message.ID); err != nil {
		return fmt.Errorf("message.id: %w", err)
	}
	if r.Message.Role != models.RoleUser {
		return fmt.Errorf("message.role must be %q", models.RoleUser)
	}
	if len(r.Message.Parts) == 0 {
		return fmt.Errorf("message.parts is empty")
	}

	texts := 0
	for i, part := range r.Message.Parts {
		switch part.Type {
		case models.PartText:
			n := utf8.RuneCountInString(part.Text)
			if n == 0 || n > MaxTextLength {
				return fmt.Errorf("message.parts[%d]: text must be 1-%d characters", i, MaxTextLength)
			}
			texts++
		case models.PartFile:
			if !allowedMediaTypes[part.MediaType] {
				return fmt.Errorf("message.parts[%d]: unsupported media type %q", i, part.MediaType)
			}
			if strings.TrimSpace(part.URL) == "" || strings.TrimSpace(part.Filename) == "" {
				return fmt.Errorf("message.parts[%d]: file needs a url and a name", i)
			}
		default:
			return fmt.Errorf("message.parts[%d]: unsupported part type %q", i, part.Type)
		}
	}
	if texts == 0 {
		return fmt.Errorf("message needs a text part")
	}

	if r.SelectedChatModel == "" {
		return fmt.Errorf("selectedChatModel is required")
	}
	if len(allowedModels) > 0 && !contains(allowedModels, r.SelectedChatModel) {
		return fmt.Errorf("selectedChatModel %q is not available", r.SelectedChatModel)
	}
	if !r.SelectedVisibilityType.Valid() {
		return fmt.Errorf("selectedVisibilityType %q is invalid", r.SelectedVisibilityType)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
