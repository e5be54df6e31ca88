// Package storagetest opens throwaway migrated SQLite databases for tests.
package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage/sqlite"
)

func NewDB(t testing.TB) *storage.DB {
	t.Helper()

	conn, err := sqlite.New("file:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn.DB()
}
