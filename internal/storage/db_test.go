package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM users WHERE email=? AND id<>?`

	assert.Equal(t, q, rebind(SQLite, q))
	assert.Equal(t, `SELECT id FROM users WHERE email=$1 AND id<>$2`, rebind(Postgres, q))
	assert.Equal(t, `SELECT 1`, rebind(Postgres, `SELECT 1`))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 30, 0, 123_000_000, time.UTC)
	assert.True(t, now.Equal(FromMillis(Millis(now))))
}
