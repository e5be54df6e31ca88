// Package chatclient is the client half of the relay protocol: it keeps the
// open conversation's log, the pending notifications and the typing
// indicator consistent with what arrives over the socket.
package chatclient

import (
	"sync"
	"time"
)

type User struct {
	ID       string `json:"id,omitempty"`
	LegacyID string `json:"_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Pic      string `json:"pic,omitempty"`
}

func (u User) Key() string {
	if u.ID != "" {
		return u.ID
	}
	return u.LegacyID
}

type Chat struct {
	ID          string `json:"id,omitempty"`
	LegacyID    string `json:"_id,omitempty"`
	ChatName    string `json:"chat_name,omitempty"`
	IsGroupChat bool   `json:"is_group_chat,omitempty"`
	Users       []User `json:"users"`
}

func (c Chat) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.LegacyID
}

// Message mirrors the denormalized message returned by the REST API.
type Message struct {
	ID        string    `json:"id,omitempty"`
	LegacyID  string    `json:"_id,omitempty"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	Chat      Chat      `json:"chat"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LegacyID
}

type TypingState int

const (
	Idle TypingState = iota
	PeerTyping
)

func (s TypingState) String() string {
	if s == PeerTyping {
		return "peer-typing"
	}
	return "idle"
}

// Reconciler merges relayed messages with fetched history. OnRefresh, when
// set, is called after a message lands in the notification list so the
// chat list can be refetched.
type Reconciler struct {
	OnRefresh func()

	mu            sync.Mutex
	open          string
	log           []Message
	notifications []Message
	typing        TypingState
}

func NewReconciler(onRefresh func()) *Reconciler {
	return &Reconciler{OnRefresh: onRefresh}
}

// OpenChat makes chatID the visible conversation with history as its log
// and clears that chat's pending notifications.
func (r *Reconciler) OpenChat(chatID string, history []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.open = chatID
	r.log = append([]Message(nil), history...)
	r.typing = Idle

	kept := r.notifications[:0]
	for _, n := range r.notifications {
		if n.Chat.Key() != chatID {
			kept = append(kept, n)
		}
	}
	r.notifications = kept
}

func (r *Reconciler) CloseChat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = ""
	r.log = nil
	r.typing = Idle
}

func (r *Reconciler) OpenChatID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Receive handles a "message recieved" delivery. It reports whether the
// message went to the visible log.
func (r *Reconciler) Receive(m Message) bool {
	r.mu.Lock()
	if r.open != "" && r.open == m.Chat.Key() {
		r.log = append(r.log, m)
		r.mu.Unlock()
		return true
	}

	dup := false
	if key := m.Key(); key != "" {
		for _, n := range r.notifications {
			if n.Key() == key {
				dup = true
				break
			}
		}
	}
	var refresh func()
	if !dup {
		r.notifications = append([]Message{m}, r.notifications...)
		refresh = r.OnRefresh
	}
	r.mu.Unlock()

	if refresh != nil {
		refresh()
	}
	return false
}

// Append adds the user's own message after it was sent over REST.
func (r *Reconciler) Append(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open != "" && r.open == m.Chat.Key() {
		r.log = append(r.log, m)
	}
}

func (r *Reconciler) Log() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.log...)
}

// Notifications returns pending messages, newest first.
func (r *Reconciler) Notifications() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.notifications...)
}

// DismissNotification drops the notification for messageID.
func (r *Reconciler) DismissNotification(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.notifications[:0]
	for _, n := range r.notifications {
		if n.Key() != messageID {
			kept = append(kept, n)
		}
	}
	r.notifications = kept
}

// SetPeerTyping applies a typing or stop typing event. Events for a chat
// other than the open one are ignored. There is no timeout.
func (r *Reconciler) SetPeerTyping(chatID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chatID != "" && chatID != r.open {
		return
	}
	if typing {
		r.typing = PeerTyping
	} else {
		r.typing = Idle
	}
}

func (r *Reconciler) Typing() TypingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing
}
