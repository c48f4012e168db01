package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OpenConfig selects and tunes a storage backend.
type OpenConfig struct {
	// Driver is "memory", "postgres" or "sqlite".
	Driver          string
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// Open returns the configured Store. SQL backends are pinged before use.
func Open(ctx context.Context, cfg OpenConfig) (Store, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		return NewMemoryStore(), nil
	}
	db, dialect, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		migrator, err := NewMigrator(db, dialect)
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := migrator.Up(ctx, 0); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return NewSQLStore(db, dialect), nil
}

// OpenDB connects and pings a SQL backend. The memory driver has no
// database and is rejected.
func OpenDB(ctx context.Context, cfg OpenConfig) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case string(DialectPostgres), string(DialectSQLite):
	default:
		return nil, "", fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if cfg.URL == "" {
		return nil, "", fmt.Errorf("storage url is required for driver %s", cfg.Driver)
	}

	dialect := Dialect(cfg.Driver)
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, dialect, nil
}
