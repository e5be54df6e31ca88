package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("chatclient: connection closed")

// Client is one relay connection feeding a Reconciler.
type Client struct {
	Reconciler *Reconciler

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	chatID  string
	typing  *Debouncer
	onError func(relay.ErrorPayload)

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
}

// Dial connects to the relay at url (for example ws://host/ws) with a
// bearer token and starts reading.
func Dial(ctx context.Context, url, token string, rec *Reconciler) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chatclient: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("chatclient: dial %s: %w", url, err)
	}
	if rec == nil {
		rec = NewReconciler(nil)
	}

	c := &Client{
		Reconciler: rec,
		ws:         ws,
		connected:  make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *Client) Emit(event string, data any) error {
	frame, err := relay.Encode(event, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Setup binds the connection to user's personal room. Wait on Connected
// for the acknowledgement.
func (c *Client) Setup(user User) error {
	return c.Emit(relay.EventSetup, user)
}

func (c *Client) Connected() <-chan struct{} { return c.connected }

// OnError registers fn to receive "error" events from the relay.
func (c *Client) OnError(fn func(relay.ErrorPayload)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Client) Done() <-chan struct{} { return c.done }

// OpenChat switches the visible conversation, leaving the previous chat
// room and joining chatID's.
func (c *Client) OpenChat(chatID string, history []Message) error {
	c.mu.Lock()
	prev := c.chatID
	c.chatID = chatID
	c.typing = NewDebouncer(func(event string) {
		if err := c.Emit(event, chatID); err != nil {
			log.Debug().Err(err).Str("event", event).Msg("chatclient: typing emit failed")
		}
	})
	c.mu.Unlock()

	c.Reconciler.OpenChat(chatID, history)
	if prev != "" && prev != chatID {
		if err := c.Emit(relay.EventLeaveChat, prev); err != nil {
			return err
		}
	}
	return c.Emit(relay.EventJoinChat, chatID)
}

func (c *Client) CloseChat() error {
	c.mu.Lock()
	prev := c.chatID
	c.chatID = ""
	c.typing = nil
	c.mu.Unlock()

	c.Reconciler.CloseChat()
	if prev == "" {
		return nil
	}
	return c.Emit(relay.EventLeaveChat, prev)
}

// Keystroke feeds the open chat's typing debouncer.
func (c *Client) Keystroke() {
	c.mu.Lock()
	d := c.typing
	c.mu.Unlock()
	if d != nil {
		d.Keystroke()
	}
}

// Publish relays a message already persisted over REST and appends it to
// the open log.
func (c *Client) Publish(m Message) error {
	c.mu.Lock()
	d := c.typing
	c.mu.Unlock()
	if d != nil {
		d.Sent()
	}

	if err := c.Emit(relay.EventNewMessage, m); err != nil {
		return err
	}
	c.Reconciler.Append(m)
	return nil
}

func (c *Client) Close() error {
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	<-c.done
	return err
}

func (c *Client) run() {
	defer close(c.done)
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env relay.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			log.Warn().Err(err).Msg("chatclient: undecodable frame")
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env relay.Envelope) {
	switch env.Event {
	case relay.EventConnected:
		c.connectedOnce.Do(func() { close(c.connected) })
	case relay.EventMessageReceived:
		var m Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			log.Warn().Err(err).Msg("chatclient: undecodable message")
			return
		}
		c.Reconciler.Receive(m)
	case relay.EventTyping, relay.EventStopTyping:
		var chatID string
		_ = json.Unmarshal(env.Data, &chatID)
		c.Reconciler.SetPeerTyping(chatID, env.Event == relay.EventTyping)
	case relay.EventError:
		var p relay.ErrorPayload
		_ = json.Unmarshal(env.Data, &p)
		log.Warn().Str("event", p.Event).Str("message", p.Message).Msg("chatclient: relay rejected event")
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(p)
		}
	}
}
