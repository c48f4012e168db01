package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].ID != "001_create_conversations" {
		t.Fatalf("first migration = %q", migrations[0].ID)
	}
	for _, migration := range migrations {
		if migration.UpSQL == "" || migration.DownSQL == "" {
			t.Fatalf("migration %s is missing a direction", migration.ID)
		}
	}
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at"}).
			AddRow("001_create_conversations", time.Now()))
	for _, id := range []string{"002_create_integrations", "003_create_oauth_clients"} {
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO schema_migrations \(id\) VALUES \(\?1\)`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	migrator, err := NewMigrator(db, DialectSQLite)
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}
	applied, err := migrator.Up(context.Background(), 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if len(applied) != 2 || applied[0] != "002_create_integrations" {
		t.Fatalf("Up() applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unfulfilled expectations: %v", err)
	}
}

func TestMigrator_UpDownSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, OpenConfig{Driver: "sqlite", URL: "file:" + t.TempDir() + "/m.db"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	sqlStore := store.(*SQLStore)
	migrator, err := NewMigrator(sqlStore.DB(), sqlStore.Dialect())
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}

	applied, err := migrator.Up(ctx, 2)
	if err != nil {
		t.Fatalf("Up(2) error = %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Up(2) applied = %v", applied)
	}
	done, pending, err := migrator.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(done) != 2 || len(pending) != 1 {
		t.Fatalf("Status() applied=%d pending=%d", len(done), len(pending))
	}

	rolled, err := migrator.Down(ctx, 1)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if len(rolled) != 1 || rolled[0] != "002_create_integrations" {
		t.Fatalf("Down() rolled = %v", rolled)
	}
	if _, err := migrator.Up(ctx, 0); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	_, pending, _ = migrator.Status(ctx)
	if len(pending) != 0 {
		t.Fatalf("pending after full Up = %d", len(pending))
	}
}
