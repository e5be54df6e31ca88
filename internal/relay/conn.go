package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Conn is one websocket client. Frames queue on a bounded buffer drained
// by a single writer; a client that lets the buffer fill is closed.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, userID string) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) session() Session {
	return Session{ConnID: c.id, UserID: c.userID}
}

func (c *Conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		log.Warn().Str("connID", c.id).Str("userID", c.userID).Msg("relay: dropping slow client")
		c.close()
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close asks the writer to send a close frame and hang up.
func (c *Conn) Close() { c.close() }

func (c *Conn) readPump(ctx context.Context, r *Relay) {
	defer func() {
		r.Disconnect(context.WithoutCancel(ctx), c.session())
		c.close()
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connID", c.id).Msg("relay: read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			r.reject(c.session(), "", ErrMalformed)
			continue
		}
		if err := r.Dispatch(ctx, c.session(), env); err != nil {
			level := zerolog.ErrorLevel
			if errors.Is(err, ErrIdentityMismatch) || errors.Is(err, ErrNotChatMember) || errors.Is(err, ErrUnknownEvent) {
				level = zerolog.WarnLevel
			}
			log.WithLevel(level).Err(err).Str("connID", c.id).Str("event", env.Event).Msg("relay: event rejected")
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
