package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	_ "github.com/lib/pq"
)

type Postgres struct {
	Db *storage.DB
}

func New(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{
		Db: storage.Wrap(db, storage.Postgres),
	}, nil
}

func (s *Postgres) DB() *storage.DB { return s.Db }

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.Db.Close()
}
