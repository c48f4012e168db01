package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/conductor/pkg/models"
)

// MemoryStore is an in-memory Store. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	streams       map[string][]*models.StreamRecord
	connections   map[string]*models.IntegrationConnection
	authRequests  map[string]*models.AuthRequest
	oauth         map[string]*models.OAuthClientState
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		streams:       make(map[string][]*models.StreamRecord),
		connections:   make(map[string]*models.IntegrationConnection),
		authRequests:  make(map[string]*models.AuthRequest),
		oauth:         make(map[string]*models.OAuthClientState),
		now:           time.Now,
	}
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; exists {
		return ErrAlreadyExists
	}
	copied := *conv
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	delete(s.streams, id)
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		copied := *conv
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("message id and conversation id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("append message: conversation %s: %w", msg.ConversationID, ErrNotFound)
	}
	for _, existing := range s.messages[msg.ConversationID] {
		if existing.ID == msg.ID {
			return ErrAlreadyExists
		}
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg.Clone())
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.messages[conversationID]
	out := make([]*models.Message, len(stored))
	for i, msg := range stored {
		out[i] = msg.Clone()
	}
	return out, nil
}

func (s *MemoryStore) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for convID, msgs := range s.messages {
		conv, ok := s.conversations[convID]
		if !ok || conv.UserID != userID {
			continue
		}
		for _, msg := range msgs {
			if msg.Role == models.RoleUser && !msg.CreatedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateStreamRecord(ctx context.Context, record *models.StreamRecord) error {
	if record == nil || record.ID == "" || record.ConversationID == "" {
		return fmt.Errorf("stream id and conversation id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.streams[record.ConversationID] = append(s.streams[record.ConversationID], &copied)
	return nil
}

func (s *MemoryStore) ListStreamRecords(ctx context.Context, conversationID string) ([]*models.StreamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.streams[conversationID]
	out := make([]*models.StreamRecord, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		copied := *stored[i]
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetConnection(ctx context.Context, userID, integration string) (*models.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[pairKey(userID, integration)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConnection(conn), nil
}

func (s *MemoryStore) UpsertConnection(ctx context.Context, conn *models.IntegrationConnection) error {
	if conn == nil || conn.UserID == "" || conn.Integration == "" {
		return fmt.Errorf("connection user and integration are required")
	}
	copied := cloneConnection(conn)
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[pairKey(conn.UserID, conn.Integration)] = copied
	return nil
}

func (s *MemoryStore) DeleteConnection(ctx context.Context, userID, integration string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, pairKey(userID, integration))
	return nil
}

func cloneConnection(conn *models.IntegrationConnection) *models.IntegrationConnection {
	copied := *conn
	if conn.Metadata != nil {
		copied.Metadata = make(map[string]any, len(conn.Metadata))
		for k, v := range conn.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

func (s *MemoryStore) GetAuthRequest(ctx context.Context, userID, integration string) (*models.AuthRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.authRequests[pairKey(userID, integration)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *MemoryStore) UpsertAuthRequest(ctx context.Context, req *models.AuthRequest) error {
	if req == nil || req.UserID == "" || req.Integration == "" {
		return fmt.Errorf("auth request user and integration are required")
	}
	copied := *req
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authRequests[pairKey(req.UserID, req.Integration)] = &copied
	return nil
}

func (s *MemoryStore) DeleteAuthRequest(ctx context.Context, userID, integration string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authRequests, pairKey(userID, integration))
	return nil
}

func (s *MemoryStore) DeleteExpiredAuthRequests(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, req := range s.authRequests {
		if req.Expired(now) {
			delete(s.authRequests, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) GetOAuthState(ctx context.Context, userID, provider string) (*models.OAuthClientState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.oauth[pairKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOAuthState(state), nil
}

func (s *MemoryStore) UpsertOAuthState(ctx context.Context, userID, provider string, update OAuthStateUpdate) error {
	if userID == "" || provider == "" {
		return fmt.Errorf("oauth state user and provider are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, provider)
	state, ok := s.oauth[key]
	if !ok {
		state = &models.OAuthClientState{UserID: userID, Provider: provider}
		s.oauth[key] = state
	}
	if update.ClientInfo != nil {
		info := *update.ClientInfo
		info.RedirectURIs = append([]string(nil), update.ClientInfo.RedirectURIs...)
		state.ClientInfo = &info
	}
	if update.Tokens != nil {
		tokens := *update.Tokens
		state.Tokens = &tokens
	}
	if update.CodeVerifier != nil {
		state.CodeVerifier = *update.CodeVerifier
	}
	state.UpdatedAt = s.now()
	return nil
}

func cloneOAuthState(state *models.OAuthClientState) *models.OAuthClientState {
	copied := *state
	if state.ClientInfo != nil {
		info := *state.ClientInfo
		info.RedirectURIs = append([]string(nil), state.ClientInfo.RedirectURIs...)
		copied.ClientInfo = &info
	}
	if state.Tokens != nil {
		tokens := *state.Tokens
		copied.Tokens = &tokens
	}
	return &copied
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
