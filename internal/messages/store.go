package messages

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/chats"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/google/uuid"
)

var ErrEmptyContent = httpx.BadRequest("Message content is empty", "content")

// Message is the denormalized form returned by the API and relayed over
// the socket as the "new message" payload.
type Message struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Sender    users.User `json:"sender"`
	Chat      chats.Chat `json:"chat"`
	CreatedAt time.Time  `json:"created_at"`
}

type Store struct {
	DB *storage.DB
}

func (s Store) chats() chats.Store { return chats.Store{DB: s.DB} }

func (s Store) requireMember(ctx context.Context, chatID, userID string) error {
	if _, err := s.chats().Get(ctx, chatID); err != nil {
		return err
	}
	ok, err := s.chats().IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return chats.ErrNotMember
	}
	return nil
}

// Send persists a message from senderID into chatID and makes it the
// chat's latest message. created_at is strictly increasing per chat so
// history order is stable.
func (s Store) Send(ctx context.Context, senderID, chatID, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyContent
	}
	if err := s.requireMember(ctx, chatID, senderID); err != nil {
		return Message{}, err
	}

	id := uuid.NewString()
	err := s.DB.InTx(ctx, func(tx *storage.Tx) error {
		var last int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE chat_id=?`, chatID).Scan(&last); err != nil {
			return err
		}
		now := storage.NowMillis()
		if now <= last {
			now = last + 1
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, chatID, senderID, content, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE chats SET latest_message_id=?, updated_at=? WHERE id=?`, id, now, chatID)
		return err
	})
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	list, err := s.load(ctx, chatID, 0, `AND msg.id=?`, id)
	if err != nil {
		return Message{}, err
	}
	if len(list) == 0 {
		return Message{}, storage.ErrNotFound
	}
	return list[0], nil
}

// List returns chatID's history oldest first. userID must be a member.
// A positive limit keeps only the newest limit messages.
func (s Store) List(ctx context.Context, userID, chatID string, limit int) ([]Message, error) {
	if err := s.requireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.load(ctx, chatID, limit, "")
}

// load returns chatID's messages oldest first. A positive limit selects
// the newest limit rows in SQL.
func (s Store) load(ctx context.Context, chatID string, limit int, filter string, args ...any) ([]Message, error) {
	query := `SELECT ` + users.Columns("u") + `, msg.id, msg.content, msg.created_at
		FROM messages msg JOIN users u ON u.id = msg.sender_id
		WHERE msg.chat_id=? ` + filter
	args = append([]any{chatID}, args...)
	if limit > 0 {
		query += ` ORDER BY msg.created_at DESC LIMIT ?`
		args = append(args, limit)
	} else {
		query += ` ORDER BY msg.created_at ASC`
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	list := []Message{}
	for rows.Next() {
		var (
			m         Message
			createdAt int64
		)
		sender, err := users.Scan(rows, &m.ID, &m.Content, &createdAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = sender
		m.CreatedAt = storage.FromMillis(createdAt)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if limit > 0 {
		slices.Reverse(list)
	}

	if len(list) == 0 {
		return list, nil
	}
	chat, err := s.chats().Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Chat = chat
	}
	return list, nil
}
