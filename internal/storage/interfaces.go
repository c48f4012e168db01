// Package storage persists conversations, messages, stream records,
// integration connections, auth requests and OAuth client state behind
// narrow keyed accessors.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/conductor/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ConversationStore persists conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// DeleteConversation removes the conversation with its messages and
	// stream records.
	DeleteConversation(ctx context.Context, id string) error
	// ListConversations returns the user's conversations, newest first.
	ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)
}

// MessageStore persists messages in insertion order.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	// CountUserMessagesSince counts user-role messages across all of the
	// user's conversations created at or after since.
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// StreamStore binds stream ids to conversations.
type StreamStore interface {
	CreateStreamRecord(ctx context.Context, record *models.StreamRecord) error
	// ListStreamRecords returns the conversation's streams, newest first.
	ListStreamRecords(ctx context.Context, conversationID string) ([]*models.StreamRecord, error)
}

// ConnectionStore persists per (user, integration) connection state.
type ConnectionStore interface {
	GetConnection(ctx context.Context, userID, integration string) (*models.IntegrationConnection, error)
	UpsertConnection(ctx context.Context, conn *models.IntegrationConnection) error
	DeleteConnection(ctx context.Context, userID, integration string) error
}

// AuthRequestStore persists in-flight authorization requests.
type AuthRequestStore interface {
	GetAuthRequest(ctx context.Context, userID, integration string) (*models.AuthRequest, error)
	UpsertAuthRequest(ctx context.Context, req *models.AuthRequest) error
	DeleteAuthRequest(ctx context.Context, userID, integration string) error
	// DeleteExpiredAuthRequests removes requests whose expiry is at or
	// before now and returns how many were removed.
	DeleteExpiredAuthRequests(ctx context.Context, now time.Time) (int, error)
}

// OAuthStateUpdate carries the fields to change in an OAuth client state.
// Nil fields are left untouched.
type OAuthStateUpdate struct {
	ClientInfo   *models.OAuthClientInfo
	Tokens       *models.OAuthTokens
	CodeVerifier *string
}

// OAuthStateStore persists per (user, provider) OAuth client state.
type OAuthStateStore interface {
	GetOAuthState(ctx context.Context, userID, provider string) (*models.OAuthClientState, error)
	// UpsertOAuthState creates the record if needed and applies the
	// non-nil fields of update.
	UpsertOAuthState(ctx context.Context, userID, provider string, update OAuthStateUpdate) error
}

// Store groups every accessor used by the application.
type Store interface {
	ConversationStore
	MessageStore
	StreamStore
	ConnectionStore
	AuthRequestStore
	OAuthStateStore
	Close() error
}
