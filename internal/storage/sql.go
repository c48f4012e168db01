package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/conductor/pkg/models"
)

// Dialect selects placeholder syntax and driver name.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements Store on database/sql. Queries are written with $N
// placeholders and rebound for SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// DB exposes the underlying handle for migrations.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL dialect in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) q(query string) string {
	return rebind(s.dialect, query)
}

// rebind rewrites $N placeholders as ?N for SQLite.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectSQLite || !strings.Contains(query, "$") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO conversations (id, user_id, title, visibility, created_at)
		 VALUES ($1, $2, $3, $4, $5)`),
		conv.ID, conv.UserID, conv.Title, string(conv.Visibility), conv.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, user_id, title, visibility, created_at FROM conversations WHERE id = $1`), id)

	var conv models.Conversation
	var visibility string
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &visibility, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.Visibility = models.Visibility(visibility)
	return &conv, nil
}

func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete conversation: %w", err)
	}
	for _, query := range []string{
		`DELETE FROM streams WHERE conversation_id = $1`,
		`DELETE FROM messages WHERE conversation_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, s.q(query), id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete conversation children: %w", err)
		}
	}
	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM conversations WHERE id = $1`), id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete conversation: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, user_id, title, visibility, created_at FROM conversations
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []*models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		var visibility string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &visibility, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.Visibility = models.Visibility(visibility)
		out = append(out, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("message id and conversation id are required")
	}
	parts, err := json.Marshal(nonNilParts(msg.Parts))
	if err != nil {
		return fmt.Errorf("marshal message parts: %w", err)
	}
	attachments, err := json.Marshal(nonNilParts(msg.Attachments))
	if err != nil {
		return fmt.Errorf("marshal message attachments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO messages (id, conversation_id, seq, role, parts, attachments, created_at)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $2), $3, $4, $5, $6)`),
		msg.ID, msg.ConversationID, string(msg.Role), string(parts), string(attachments), msg.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, conversation_id, role, parts, attachments, created_at FROM messages
		 WHERE conversation_id = $1 ORDER BY seq ASC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		var msg models.Message
		var role, parts, attachments string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &parts, &attachments, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal message parts: %w", err)
		}
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshal message attachments: %w", err)
			}
		}
		if len(msg.Attachments) == 0 {
			msg.Attachments = nil
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (s *SQLStore) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1 AND m.role = $2 AND m.created_at >= $3`),
		userID, string(models.RoleUser), since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return count, nil
}

func (s *SQLStore) CreateStreamRecord(ctx context.Context, record *models.StreamRecord) error {
	if record == nil || record.ID == "" || record.ConversationID == "" {
		return fmt.Errorf("stream id and conversation id are required")
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO streams (id, conversation_id, created_at) VALUES ($1, $2, $3)`),
		record.ID, record.ConversationID, record.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create stream record: %w", err)
	}
	return nil
}

func (s *SQLStore) ListStreamRecords(ctx context.Context, conversationID string) ([]*models.StreamRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, conversation_id, created_at FROM streams
		 WHERE conversation_id = $1 ORDER BY created_at DESC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("list stream records: %w", err)
	}
	defer rows.Close()

	out := []*models.StreamRecord{}
	for rows.Next() {
		var record models.StreamRecord
		if err := rows.Scan(&record.ID, &record.ConversationID, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stream record: %w", err)
		}
		out = append(out, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stream records: %w", err)
	}
	return out, nil
}

func (s *SQLStore) GetConnection(ctx context.Context, userID, integration string) (*models.IntegrationConnection, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT user_id, integration, connected, connection_id, metadata, updated_at
		 FROM integration_connections WHERE user_id = $1 AND integration = $2`), userID, integration)

	var conn models.IntegrationConnection
	var metadata string
	if err := row.Scan(&conn.UserID, &conn.Integration, &conn.Connected, &conn.ConnectionID, &metadata, &conn.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &conn.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal connection metadata: %w", err)
		}
	}
	return &conn, nil
}

func (s *SQLStore) UpsertConnection(ctx context.Context, conn *models.IntegrationConnection) error {
	if conn == nil || conn.UserID == "" || conn.Integration == "" {
		return fmt.Errorf("connection user and integration are required")
	}
	metadata := []byte("{}")
	if len(conn.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(conn.Metadata); err != nil {
			return fmt.Errorf("marshal connection metadata: %w", err)
		}
	}
	updatedAt := conn.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO integration_connections (user_id, integration, connected, connection_id, metadata, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, integration) DO UPDATE SET
		   connected = excluded.connected,
		   connection_id = excluded.connection_id,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`),
		conn.UserID, conn.Integration, conn.Connected, conn.ConnectionID, string(metadata), updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteConnection(ctx context.Context, userID, integration string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM integration_connections WHERE user_id = $1 AND integration = $2`), userID, integration)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAuthRequest(ctx context.Context, userID, integration string) (*models.AuthRequest, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT user_id, integration, request_id, redirect_url, created_at, expires_at
		 FROM auth_requests WHERE user_id = $1 AND integration = $2`), userID, integration)

	var req models.AuthRequest
	if err := row.Scan(&req.UserID, &req.Integration, &req.RequestID, &req.RedirectURL, &req.CreatedAt, &req.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get auth request: %w", err)
	}
	return &req, nil
}

func (s *SQLStore) UpsertAuthRequest(ctx context.Context, req *models.AuthRequest) error {
	if req == nil || req.UserID == "" || req.Integration == "" {
		return fmt.Errorf("auth request user and integration are required")
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO auth_requests (user_id, integration, request_id, redirect_url, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, integration) DO UPDATE SET
		   request_id = excluded.request_id,
		   redirect_url = excluded.redirect_url,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`),
		req.UserID, req.Integration, req.RequestID, req.RedirectURL, req.CreatedAt.UTC(), req.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert auth request: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteAuthRequest(ctx context.Context, userID, integration string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM auth_requests WHERE user_id = $1 AND integration = $2`), userID, integration)
	if err != nil {
		return fmt.Errorf("delete auth request: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteExpiredAuthRequests(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM auth_requests WHERE expires_at <= $1`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired auth requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

func (s *SQLStore) GetOAuthState(ctx context.Context, userID, provider string) (*models.OAuthClientState, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT user_id, provider, client_info, tokens, code_verifier, updated_at
		 FROM oauth_clients WHERE user_id = $1 AND provider = $2`), userID, provider)

	var state models.OAuthClientState
	var clientInfo, tokens sql.NullString
	if err := row.Scan(&state.UserID, &state.Provider, &clientInfo, &tokens, &state.CodeVerifier, &state.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get oauth state: %w", err)
	}
	if clientInfo.Valid && clientInfo.String != "" {
		state.ClientInfo = &models.OAuthClientInfo{}
		if err := json.Unmarshal([]byte(clientInfo.String), state.ClientInfo); err != nil {
			return nil, fmt.Errorf("unmarshal oauth client info: %w", err)
		}
	}
	if tokens.Valid && tokens.String != "" {
		state.Tokens = &models.OAuthTokens{}
		if err := json.Unmarshal([]byte(tokens.String), state.Tokens); err != nil {
			return nil, fmt.Errorf("unmarshal oauth tokens: %w", err)
		}
	}
	return &state, nil
}

func (s *SQLStore) UpsertOAuthState(ctx context.Context, userID, provider string, update OAuthStateUpdate) error {
	if userID == "" || provider == "" {
		return fmt.Errorf("oauth state user and provider are required")
	}
	clientInfo, err := nullJSON(update.ClientInfo)
	if err != nil {
		return fmt.Errorf("marshal oauth client info: %w", err)
	}
	tokens, err := nullJSON(update.Tokens)
	if err != nil {
		return fmt.Errorf("marshal oauth tokens: %w", err)
	}
	var verifier sql.NullString
	if update.CodeVerifier != nil {
		verifier = sql.NullString{String: *update.CodeVerifier, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO oauth_clients (user_id, provider, client_info, tokens, code_verifier, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, ''), $6)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   client_info = COALESCE(excluded.client_info, oauth_clients.client_info),
		   tokens = COALESCE(excluded.tokens, oauth_clients.tokens),
		   code_verifier = COALESCE($5, oauth_clients.code_verifier),
		   updated_at = excluded.updated_at`),
		userID, provider, clientInfo, tokens, verifier, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert oauth state: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullJSON[T any](value *T) (sql.NullString, error) {
	if value == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nonNilParts(parts []models.Part) []models.Part {
	if parts == nil {
		return []models.Part{}
	}
	return parts
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

var _ Store = (*SQLStore)(nil)
