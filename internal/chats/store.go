package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/google/uuid"
)

var (
	ErrChatNotFound = httpx.NotFound("Chat not found")
	ErrUserNotFound = httpx.NotFound("User not found")
	ErrNotMember    = httpx.Forbidden("Not a member of this chat")
	ErrNotAdmin     = httpx.Forbidden("Only the group admin can do that")
	ErrNotGroup     = httpx.BadRequest("Not a group chat", "chatId")
	ErrTooFewUsers  = httpx.BadRequest("More than 2 users are required to form a group chat", "users")
)

// MessagePreview is the latest message shown in chat lists.
type MessagePreview struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Sender    users.User `json:"sender"`
	CreatedAt time.Time  `json:"created_at"`
}

type Chat struct {
	ID            string          `json:"id"`
	ChatName      string          `json:"chat_name"`
	IsGroupChat   bool            `json:"is_group_chat"`
	Users         []users.User    `json:"users"`
	GroupAdmin    *users.User     `json:"group_admin,omitempty"`
	LatestMessage *MessagePreview `json:"latest_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasUser reports whether userID is in the populated member list.
func (c Chat) HasUser(userID string) bool {
	for _, u := range c.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

type Store struct {
	DB *storage.DB
}

// IsMember reports whether userID belongs to chatID. It satisfies
// relay.MembershipChecker.
func (s Store) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chat_members WHERE chat_id=? AND user_id=?`, chatID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

func (s Store) userExists(ctx context.Context, q storage.Queryer, userID string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id=?`, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

var errPairTaken = errors.New("chats: direct chat created concurrently")

// pairKey is the order-independent key of a one-to-one chat.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (s Store) directChat(ctx context.Context, q storage.Queryer, key string) (string, error) {
	var chatID string
	err := q.QueryRowContext(ctx, `SELECT chat_id FROM direct_chats WHERE pair_key=?`, key).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return chatID, err
}

// Access returns the one-to-one chat between callerID and otherID,
// creating it on first use. The pair key is unique, so concurrent first
// calls converge on one chat.
func (s Store) Access(ctx context.Context, callerID, otherID string) (Chat, error) {
	if callerID == otherID {
		return Chat{}, httpx.BadRequest("Cannot start a chat with yourself", "userId")
	}
	key := pairKey(callerID, otherID)

	chatID, err := s.directChat(ctx, s.DB, key)
	if err != nil {
		return Chat{}, fmt.Errorf("find direct chat: %w", err)
	}
	if chatID != "" {
		return s.Get(ctx, chatID)
	}

	err = s.DB.InTx(ctx, func(tx *storage.Tx) error {
		ok, err := s.userExists(ctx, tx, otherID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotFound
		}

		chatID = uuid.NewString()
		now := storage.NowMillis()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, chat_name, is_group_chat, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			chatID, "sender", false, now, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?), (?, ?)`,
			chatID, callerID, chatID, otherID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO direct_chats (pair_key, chat_id) VALUES (?, ?) ON CONFLICT (pair_key) DO NOTHING`,
			key, chatID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errPairTaken
		}
		return nil
	})
	if errors.Is(err, errPairTaken) {
		chatID, err = s.directChat(ctx, s.DB, key)
		if err == nil && chatID == "" {
			err = ErrChatNotFound
		}
	}
	if err != nil {
		return Chat{}, err
	}
	return s.Get(ctx, chatID)
}

// CreateGroup creates a group chat administered by adminID. memberIDs must
// name at least two users other than the admin.
func (s Store) CreateGroup(ctx context.Context, adminID, name string, memberIDs []string) (Chat, error) {
	seen := map[string]bool{adminID: true}
	members := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return Chat{}, ErrTooFewUsers
	}

	chatID := uuid.NewString()
	err := s.DB.InTx(ctx, func(tx *storage.Tx) error {
		for _, id := range members {
			ok, err := s.userExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUserNotFound
			}
		}

		now := storage.NowMillis()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, chat_name, is_group_chat, group_admin, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			chatID, strings.TrimSpace(name), true, adminID, now, now); err != nil {
			return err
		}
		for _, id := range append(members, adminID) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)`, chatID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Chat{}, err
	}
	return s.Get(ctx, chatID)
}

type chatRow struct {
	isGroup bool
	admin   string
}

func (s Store) row(ctx context.Context, chatID string) (chatRow, error) {
	var (
		r     chatRow
		admin sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `SELECT is_group_chat, group_admin FROM chats WHERE id=?`, chatID).Scan(&r.isGroup, &admin)
	if errors.Is(err, sql.ErrNoRows) {
		return chatRow{}, ErrChatNotFound
	}
	if err != nil {
		return chatRow{}, err
	}
	r.admin = admin.String
	return r, nil
}

// Rename changes a group's name. Any member may rename.
func (s Store) Rename(ctx context.Context, callerID, chatID, name string) (Chat, error) {
	r, err := s.row(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !r.isGroup {
		return Chat{}, ErrNotGroup
	}
	if ok, err := s.IsMember(ctx, chatID, callerID); err != nil {
		return Chat{}, err
	} else if !ok {
		return Chat{}, ErrNotMember
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE chats SET chat_name=?, updated_at=? WHERE id=?`,
		strings.TrimSpace(name), storage.NowMillis(), chatID); err != nil {
		return Chat{}, err
	}
	return s.Get(ctx, chatID)
}

// AddMember adds userID to a group. Only the admin may add.
func (s Store) AddMember(ctx context.Context, callerID, chatID, userID string) (Chat, error) {
	r, err := s.row(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !r.isGroup {
		return Chat{}, ErrNotGroup
	}
	if r.admin != callerID {
		return Chat{}, ErrNotAdmin
	}
	if ok, err := s.userExists(ctx, s.DB, userID); err != nil {
		return Chat{}, err
	} else if !ok {
		return Chat{}, ErrUserNotFound
	}

	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, chatID, userID); err != nil {
		return Chat{}, err
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE chats SET updated_at=? WHERE id=?`, storage.NowMillis(), chatID); err != nil {
		return Chat{}, err
	}
	return s.Get(ctx, chatID)
}

// RemoveMember removes userID from a group. The admin may remove anyone,
// other members only themselves.
func (s Store) RemoveMember(ctx context.Context, callerID, chatID, userID string) (Chat, error) {
	r, err := s.row(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !r.isGroup {
		return Chat{}, ErrNotGroup
	}
	if r.admin != callerID && callerID != userID {
		return Chat{}, ErrNotAdmin
	}

	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id=? AND user_id=?`, chatID, userID); err != nil {
		return Chat{}, err
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE chats SET updated_at=? WHERE id=?`, storage.NowMillis(), chatID); err != nil {
		return Chat{}, err
	}
	return s.Get(ctx, chatID)
}

// Get returns one chat with members, admin and latest message populated.
func (s Store) Get(ctx context.Context, chatID string) (Chat, error) {
	list, err := s.load(ctx, `SELECT id, chat_name, is_group_chat, group_admin, latest_message_id, created_at, updated_at
		FROM chats WHERE id=?`, chatID)
	if err != nil {
		return Chat{}, err
	}
	if len(list) == 0 {
		return Chat{}, ErrChatNotFound
	}
	return list[0], nil
}

// ListForUser returns userID's chats, most recently updated first.
func (s Store) ListForUser(ctx context.Context, userID string) ([]Chat, error) {
	return s.load(ctx, `SELECT c.id, c.chat_name, c.is_group_chat, c.group_admin, c.latest_message_id, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.updated_at DESC`, userID)
}

func (s Store) load(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	list := []Chat{}
	admins := map[int]string{}
	latest := map[int]string{}
	for rows.Next() {
		var (
			c                    Chat
			admin, latestMessage sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.ChatName, &c.IsGroupChat, &admin, &latestMessage, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.CreatedAt = storage.FromMillis(createdAt)
		c.UpdatedAt = storage.FromMillis(updatedAt)
		c.Users = []users.User{}
		if admin.Valid {
			admins[len(list)] = admin.String
		}
		if latestMessage.Valid {
			latest[len(list)] = latestMessage.String
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(list) == 0 {
		return list, nil
	}
	if err := s.populateMembers(ctx, list); err != nil {
		return nil, err
	}
	for i, adminID := range admins {
		for _, u := range list[i].Users {
			if u.ID == adminID {
				admin := u
				list[i].GroupAdmin = &admin
				break
			}
		}
		if list[i].GroupAdmin == nil {
			// the admin left the group; still report who it was
			if u, err := (users.Store{DB: s.DB}).ByID(ctx, adminID); err == nil {
				list[i].GroupAdmin = &u
			}
		}
	}
	return list, s.populateLatest(ctx, list, latest)
}

func (s Store) populateMembers(ctx context.Context, list []Chat) error {
	index := make(map[string]int, len(list))
	ids := make([]any, 0, len(list))
	for i, c := range list {
		index[c.ID] = i
		ids = append(ids, c.ID)
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT m.chat_id, `+users.Columns("u")+`
		FROM chat_members m JOIN users u ON u.id = m.user_id
		WHERE m.chat_id IN (`+storage.Placeholders(len(ids))+`)
		ORDER BY u.name`, ids...)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chatID string
		u, err := users.Scan(rows, &chatID)
		if err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		i := index[chatID]
		list[i].Users = append(list[i].Users, u)
	}
	return rows.Err()
}

func (s Store) populateLatest(ctx context.Context, list []Chat, latest map[int]string) error {
	if len(latest) == 0 {
		return nil
	}
	byMessage := make(map[string][]int, len(latest))
	ids := make([]any, 0, len(latest))
	for i, id := range latest {
		if _, ok := byMessage[id]; !ok {
			ids = append(ids, id)
		}
		byMessage[id] = append(byMessage[id], i)
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+users.Columns("u")+`, msg.id, msg.content, msg.created_at
		FROM messages msg JOIN users u ON u.id = msg.sender_id
		WHERE msg.id IN (`+storage.Placeholders(len(ids))+`)`, ids...)
	if err != nil {
		return fmt.Errorf("query latest messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         MessagePreview
			createdAt int64
		)
		sender, err := users.Scan(rows, &p.ID, &p.Content, &createdAt)
		if err != nil {
			return fmt.Errorf("scan latest message: %w", err)
		}
		p.Sender = sender
		p.CreatedAt = storage.FromMillis(createdAt)
		for _, i := range byMessage[p.ID] {
			preview := p
			list[i].LatestMessage = &preview
		}
	}
	return rows.Err()
}
