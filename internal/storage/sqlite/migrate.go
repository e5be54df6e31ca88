package sqlite

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schema string

func (s *Sqlite) Migrate() error {
	stmts := strings.Split(schema, ";\n")

	for _, stmt := range stmts {
		st := strings.TrimSpace(stmt)
		if st == "" {
			continue
		}
		if _, err := s.Db.DB.Exec(st); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}
