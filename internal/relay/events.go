package relay

import (
	"encoding/json"
	"strings"
)

// Socket event names. "message recieved" keeps the spelling existing
// clients listen for.
const (
	EventSetup           = "setup"
	EventJoinChat        = "join chat"
	EventLeaveChat       = "leave chat"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventNewMessage      = "new message"
	EventConnected       = "connected"
	EventMessageReceived = "message recieved"
	EventError           = "error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Encode builds a frame for event. A nil data omits the payload.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func encodeRaw(event string, raw json.RawMessage) []byte {
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}

// ref is an object carrying an id, as "id" or the legacy "_id".
type ref struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
}

func (r ref) key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LegacyID
}

// messageView is the part of a relayed message the relay reads.
type messageView struct {
	ref
	Sender *ref `json:"sender"`
	Chat   *struct {
		ref
		Users []ref `json:"users"`
	} `json:"chat"`
}

// decodeID accepts either a bare JSON string or an object with an id.
func decodeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var r ref
	if err := json.Unmarshal(raw, &r); err == nil {
		return strings.TrimSpace(r.key())
	}
	return ""
}
