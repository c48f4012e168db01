package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/conductor/pkg/models"
)

// setupMockDB creates a new mock database for testing.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	store := NewSQLStore(db, DialectPostgres)
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return db, mock, store
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"postgres untouched", DialectPostgres, "SELECT $1, $2", "SELECT $1, $2"},
		{"sqlite numbered", DialectSQLite, "SELECT $1, $12", "SELECT ?1, ?12"},
		{"dollar without digit", DialectSQLite, "SELECT '$x'", "SELECT '$x'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rebind(tt.dialect, tt.query); got != tt.want {
				t.Fatalf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQLStore_CreateConversation(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		anyErr    bool
	}{
		{
			name: "successful create",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO conversations").
					WithArgs("c1", "u1", "Title", "private", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "duplicate id",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO conversations").
					WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "conversations_pkey"`))
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO conversations").WillReturnError(sql.ErrConnDone)
			},
			anyErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockDB(t)
			defer db.Close()
			tt.setupMock(mock)

			err := store.CreateConversation(context.Background(), &models.Conversation{
				ID: "c1", UserID: "u1", Title: "Title", Visibility: models.VisibilityPrivate, CreatedAt: time.Now(),
			})
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestSQLStore_GetConversationNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, user_id, title, visibility, created_at FROM conversations").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetConversation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSQLStore_AppendMessageUsesSequence(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO messages .* SELECT COALESCE\(MAX\(seq\), 0\) \+ 1 FROM messages WHERE conversation_id = \$2`).
		WithArgs("m1", "c1", "user", `[{"type":"text","text":"hi"}]`, "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AppendMessage(context.Background(), &models.Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           models.RoleUser,
		Parts:          []models.Part{models.TextPart("hi")},
		CreatedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unfulfilled expectations: %v", err)
	}
}

func TestSQLStore_ListMessages(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "parts", "attachments", "created_at"}).
		AddRow("m1", "c1", "user", `[{"type":"text","text":"hello"}]`, "[]", now).
		AddRow("m2", "c1", "assistant", `[{"type":"text","text":"hi there"}]`, "", now)
	mock.ExpectQuery("SELECT id, conversation_id, role, parts, attachments, created_at FROM messages").
		WithArgs("c1").
		WillReturnRows(rows)

	msgs, err := store.ListMessages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[1].Text() != "hi there" || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("ListMessages() = %+v", msgs)
	}
	if msgs[0].Attachments != nil {
		t.Fatalf("expected nil attachments, got %v", msgs[0].Attachments)
	}
}

func TestSQLStore_ListMessagesBadJSON(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "parts", "attachments", "created_at"}).
		AddRow("m1", "c1", "user", `{not json`, "[]", time.Now())
	mock.ExpectQuery("SELECT id, conversation_id").WillReturnRows(rows)

	_, err := store.ListMessages(context.Background(), "c1")
	if err == nil || !strings.Contains(err.Error(), "unmarshal message parts") {
		t.Fatalf("error = %v, want unmarshal error", err)
	}
}

func TestSQLStore_DeleteConversation(t *testing.T) {
	t.Run("deletes children then conversation", func(t *testing.T) {
		db, mock, store := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM streams WHERE conversation_id").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM messages WHERE conversation_id").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec("DELETE FROM conversations WHERE id").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := store.DeleteConversation(context.Background(), "c1"); err != nil {
			t.Fatalf("DeleteConversation() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unfulfilled expectations: %v", err)
		}
	})

	t.Run("missing conversation rolls back", func(t *testing.T) {
		db, mock, store := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM streams").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM messages").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM conversations").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		if err := store.DeleteConversation(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unfulfilled expectations: %v", err)
		}
	})
}

func TestSQLStore_UpsertOAuthStateKeepsUnsetFields(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`ON CONFLICT \(user_id, provider\) DO UPDATE SET\s+client_info = COALESCE\(excluded.client_info, oauth_clients.client_info\)`).
		WithArgs("u1", "rube", nil, `{"access_token":"at"}`, nil, store.now().UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertOAuthState(context.Background(), "u1", "rube", OAuthStateUpdate{
		Tokens: &models.OAuthTokens{AccessToken: "at"},
	})
	if err != nil {
		t.Fatalf("UpsertOAuthState() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unfulfilled expectations: %v", err)
	}
}

func TestSQLStore_DeleteExpiredAuthRequests(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec("DELETE FROM auth_requests WHERE expires_at <=").
		WithArgs(now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteExpiredAuthRequests(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpiredAuthRequests() error = %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}

func TestSQLStore_GetConnectionDecodesMetadata(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_id", "integration", "connected", "connection_id", "metadata", "updated_at"}).
		AddRow("u1", "gmail", true, "ca_1", `{"total_connections":1}`, time.Now())
	mock.ExpectQuery("FROM integration_connections").WithArgs("u1", "gmail").WillReturnRows(rows)

	conn, err := store.GetConnection(context.Background(), "u1", "gmail")
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if !conn.Connected || conn.ConnectionID != "ca_1" {
		t.Fatalf("GetConnection() = %+v", conn)
	}
	if conn.Metadata["total_connections"] != float64(1) {
		t.Fatalf("metadata = %v", conn.Metadata)
	}
}
