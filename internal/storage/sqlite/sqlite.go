package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	_ "modernc.org/sqlite"
)

type Sqlite struct {
	Db *storage.DB
}

func New(dsn string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return &Sqlite{
		Db: storage.Wrap(db, storage.SQLite),
	}, nil
}

func (s *Sqlite) DB() *storage.DB { return s.Db }

func (s *Sqlite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Sqlite) Close() error {
	return s.Db.Close()
}
