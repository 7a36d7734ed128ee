// Package chatclient implements the client side of the relay-chat
// protocol: a per-room message cache backed by durable local storage,
// a reconciler that folds optimistic sends and relay echoes into a
// single entry, and a websocket subscriber for the active room.
package chatclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ChannelPrefix is prepended to a room name to form its channel name.
const ChannelPrefix = "chat-"

// AnonymousName is substituted for a missing sender name.
const AnonymousName = "anonymous"

// Millis is a Unix-millisecond timestamp that tolerates loose wire
// encodings: a JSON number, a numeric string, or an RFC 3339 string.
type Millis int64

func NowMillis() Millis {
	return Millis(time.Now().UnixMilli())
}

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*m = Millis(t.UnixMilli())
			return nil
		}
		// Unrecognized timestamp strings are defaulted, not rejected.
		*m = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*m = 0
		return nil
	}
	*m = Millis(f)
	return nil
}

// Message is one chat entry. A message is identified by ID once the
// relay has assigned one, and by ClientID before that; both refer to
// the same logical message across its lifecycle.
type Message struct {
	ID        string `json:"id,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username"`
	Body      string `json:"message"`
	Timestamp Millis `json:"timestamp"`
	// Local marks an optimistic entry not yet confirmed by the relay.
	Local bool `json:"local,omitempty"`
}

// Normalize fills the defaults for fields a peer may omit.
func (m *Message) Normalize() {
	if m.Username == "" {
		m.Username = AnonymousName
	}
	if m.Timestamp == 0 {
		m.Timestamp = NowMillis()
	}
}

// Event is the envelope carried on a room channel.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event types carried on room channels.
const (
	EventMessage  = "message"
	EventPush     = "push"
	EventPresence = "presence"
)

// Presence reports the number of live subscribers on a channel.
type Presence struct {
	Room   string `json:"room"`
	Online int    `json:"online"`
}

// NewEvent wraps a payload into an Event envelope.
func NewEvent(typ string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: data}, nil
}
