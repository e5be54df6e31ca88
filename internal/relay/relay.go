// Package relay is the real-time delivery path: presence rooms, typing
// notifications and message fan-out over persistent client connections.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	ErrIdentityMismatch = errors.New("relay: identity does not match the connection's user")
	ErrNotChatMember    = errors.New("relay: sender is not a member of the chat")
	ErrMalformed        = errors.New("relay: malformed payload")
	ErrUnknownEvent     = errors.New("relay: unknown event")
)

// MembershipChecker answers whether a user belongs to a persisted chat.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}

// ActivityRecorder stamps a user's last activity.
type ActivityRecorder interface {
	Touch(ctx context.Context, userID string) error
}

// Session identifies the connection an event arrived on and the user the
// connection authenticated as.
type Session struct {
	ConnID string
	UserID string
}

// Relay handles client events against a Registry. Members and Activity
// are optional.
type Relay struct {
	Registry *Registry
	Members  MembershipChecker
	Activity ActivityRecorder
}

func New(reg *Registry, members MembershipChecker, activity ActivityRecorder) *Relay {
	return &Relay{Registry: reg, Members: members, Activity: activity}
}

func (r *Relay) reject(s Session, event string, err error) error {
	frame, _ := Encode(EventError, ErrorPayload{Event: event, Message: err.Error()})
	r.Registry.Send(s.ConnID, frame)
	return err
}

func (r *Relay) touch(ctx context.Context, userID string) {
	if r.Activity == nil || userID == "" {
		return
	}
	if err := r.Activity.Touch(ctx, userID); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("relay: failed to record activity")
	}
}

// Setup joins the connection to its user's personal room and replies
// "connected". An empty identity means the authenticated user.
func (r *Relay) Setup(ctx context.Context, s Session, identity json.RawMessage) error {
	id := ""
	if len(identity) > 0 {
		id = decodeID(identity)
	}
	if id == "" {
		id = s.UserID
	}
	if id == "" || (s.UserID != "" && id != s.UserID) {
		log.Warn().Str("connID", s.ConnID).Str("userID", s.UserID).Str("claimed", id).Msg("relay: setup identity mismatch")
		return r.reject(s, EventSetup, ErrIdentityMismatch)
	}

	if !r.Registry.Join(s.ConnID, id) {
		return fmt.Errorf("relay: connection %s is not attached", s.ConnID)
	}
	frame, _ := Encode(EventConnected, nil)
	r.Registry.Send(s.ConnID, frame)
	r.touch(ctx, id)

	log.Debug().Str("connID", s.ConnID).Str("userID", id).Msg("relay: setup complete")
	return nil
}

// JoinChat joins the connection to a chat room. Membership is not checked
// here; chat rooms only carry typing notifications.
func (r *Relay) JoinChat(s Session, chatID string) {
	if chatID == "" {
		log.Warn().Str("connID", s.ConnID).Msg("relay: join chat without a chat id")
		return
	}
	r.Registry.Join(s.ConnID, chatID)
	log.Debug().Str("connID", s.ConnID).Str("room", chatID).Msg("relay: joined chat")
}

func (r *Relay) LeaveChat(s Session, chatID string) {
	if chatID == "" {
		return
	}
	r.Registry.Leave(s.ConnID, chatID)
	log.Debug().Str("connID", s.ConnID).Str("room", chatID).Msg("relay: left chat")
}

// Typing tells the other connections in chatID that this one is typing.
func (r *Relay) Typing(s Session, chatID string) int {
	return r.typingEvent(s, EventTyping, chatID)
}

func (r *Relay) StopTyping(s Session, chatID string) int {
	return r.typingEvent(s, EventStopTyping, chatID)
}

func (r *Relay) typingEvent(s Session, event, chatID string) int {
	if chatID == "" {
		return 0
	}
	frame, _ := Encode(event, chatID)
	return r.Registry.Broadcast(chatID, frame, s.ConnID)
}

// NewMessage re-emits an already persisted message as "message recieved"
// into the personal room of every chat member other than the sender. With
// a MembershipChecker, listed users not stored as members are skipped. It
// returns the number of rooms emitted to.
func (r *Relay) NewMessage(ctx context.Context, s Session, raw json.RawMessage) (int, error) {
	var m messageView
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Warn().Err(err).Str("connID", s.ConnID).Msg("relay: undecodable message")
		return 0, nil
	}
	if m.Chat == nil || m.Chat.Users == nil {
		log.Warn().Str("connID", s.ConnID).Str("messageID", m.key()).Msg("chat.users not defined")
		return 0, nil
	}

	senderID := ""
	if m.Sender != nil {
		senderID = m.Sender.key()
	}
	if senderID == "" || (s.UserID != "" && senderID != s.UserID) {
		log.Warn().Str("connID", s.ConnID).Str("userID", s.UserID).Str("sender", senderID).Msg("relay: sender does not match connection")
		return 0, r.reject(s, EventNewMessage, ErrIdentityMismatch)
	}

	chatID := m.Chat.key()
	if r.Members != nil {
		ok, err := r.Members.IsMember(ctx, chatID, senderID)
		if err != nil {
			log.Error().Err(err).Str("room", chatID).Str("userID", senderID).Msg("relay: membership lookup failed")
			return 0, r.reject(s, EventNewMessage, fmt.Errorf("relay: membership lookup: %w", err))
		}
		if !ok {
			log.Warn().Str("room", chatID).Str("userID", senderID).Msg("relay: sender is not a chat member")
			return 0, r.reject(s, EventNewMessage, ErrNotChatMember)
		}
	}

	frame := encodeRaw(EventMessageReceived, raw)
	seen := make(map[string]struct{}, len(m.Chat.Users))
	rooms := 0
	for _, u := range m.Chat.Users {
		id := u.key()
		if id == "" || id == senderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !r.isRecipient(ctx, chatID, id) {
			continue
		}
		r.Registry.Broadcast(id, frame, s.ConnID)
		rooms++
	}
	r.touch(ctx, senderID)
	return rooms, nil
}

// isRecipient reports whether userID is a stored member of chatID. Listed
// ids that are not are skipped rather than trusted from the payload.
func (r *Relay) isRecipient(ctx context.Context, chatID, userID string) bool {
	if r.Members == nil {
		return true
	}
	ok, err := r.Members.IsMember(ctx, chatID, userID)
	if err != nil {
		log.Error().Err(err).Str("room", chatID).Str("userID", userID).Msg("relay: recipient membership lookup failed")
		return false
	}
	if !ok {
		log.Warn().Str("room", chatID).Str("userID", userID).Msg("relay: skipping listed user outside the chat")
	}
	return ok
}

// Disconnect removes the connection from every room it joined.
func (r *Relay) Disconnect(ctx context.Context, s Session) {
	left := r.Registry.Detach(s.ConnID)
	r.touch(ctx, s.UserID)
	log.Debug().Str("connID", s.ConnID).Str("userID", s.UserID).Strs("rooms", left).Msg("relay: disconnected")
}

// Dispatch routes one inbound envelope.
func (r *Relay) Dispatch(ctx context.Context, s Session, env Envelope) error {
	switch env.Event {
	case EventSetup:
		return r.Setup(ctx, s, env.Data)
	case EventJoinChat:
		r.JoinChat(s, decodeID(env.Data))
	case EventLeaveChat:
		r.LeaveChat(s, decodeID(env.Data))
	case EventTyping:
		r.Typing(s, decodeID(env.Data))
	case EventStopTyping:
		r.StopTyping(s, decodeID(env.Data))
	case EventNewMessage:
		_, err := r.NewMessage(ctx, s, env.Data)
		return err
	default:
		return r.reject(s, env.Event, ErrUnknownEvent)
	}
	return nil
}
