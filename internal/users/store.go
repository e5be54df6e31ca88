package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/google/uuid"
)

const DefaultPic = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

var ErrEmailTaken = errors.New("users: email already registered")

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Pic        string     `json:"pic"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

type Store struct {
	DB *storage.DB
}

const userColumns = `id, name, email, pic, created_at, last_active`

// Columns lists the user columns in Scan order, qualified with alias when
// one is given.
func Columns(alias string) string {
	if alias == "" {
		return userColumns
	}
	a := alias + "."
	return a + "id, " + a + "name, " + a + "email, " + a + "pic, " + a + "created_at, " + a + "last_active"
}

type Scanner interface {
	Scan(dest ...any) error
}

// Scan reads a row selected with Columns, followed by any extra columns.
func Scan(row Scanner, extra ...any) (User, error) {
	var (
		u          User
		createdAt  int64
		lastActive sql.NullInt64
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email, &u.Pic, &createdAt, &lastActive}, extra...)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	u.CreatedAt = storage.FromMillis(createdAt)
	if lastActive.Valid {
		t := storage.FromMillis(lastActive.Int64)
		u.LastActive = &t
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email=?`, normalizeEmail(email)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func (s Store) Create(ctx context.Context, name, email, password, pic string) (User, error) {
	exists, err := s.EmailExists(ctx, email)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	if pic == "" {
		pic = DefaultPic
	}

	u := User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     normalizeEmail(email),
		Pic:       pic,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, pic, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, hash, u.Pic, storage.Millis(u.CreatedAt))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s Store) ByID(ctx context.Context, id string) (User, error) {
	u, err := Scan(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, storage.ErrNotFound
	}
	return u, err
}

// ByEmail returns the user and their password hash.
func (s Store) ByEmail(ctx context.Context, email string) (User, string, error) {
	var hash string
	u, err := Scan(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email=?`, normalizeEmail(email)), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", storage.ErrNotFound
	}
	if err != nil {
		return User{}, "", err
	}
	return u, hash, nil
}

// Search matches name or email case-insensitively, excluding one user.
func (s Store) Search(ctx context.Context, keyword, excludeID string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id<>?`
	args := []any{excludeID}
	if kw := strings.TrimSpace(keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		query += ` AND (LOWER(name) LIKE ? OR LOWER(email) LIKE ?)`
		args = append(args, like, like)
	}
	query += ` ORDER BY name LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	list := []User{}
	for rows.Next() {
		u, err := Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Touch records activity for userID. It satisfies relay.ActivityRecorder.
func (s Store) Touch(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE users SET last_active=? WHERE id=?`, storage.NowMillis(), userID)
	return err
}
