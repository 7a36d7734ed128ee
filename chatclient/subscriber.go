package chatclient

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	subWriteWait    = 10 * time.Second
	subPongWait     = 60 * time.Second
	subPingInterval = 30 * time.Second
	subReadLimit    = 1 << 20
)

// subscription is one live websocket attachment to a room channel.
type subscription struct {
	room      string
	conn      *websocket.Conn
	cancelled atomic.Bool
	done      chan struct{}
}

// subscribe dials the relay's channel for a room and starts the
// pumps. Events are delivered to the session until close is called;
// a cancelled subscription drops anything still in flight.
func (s *Session) subscribe(ctx context.Context, room string) (*subscription, error) {
	u, err := channelURL(s.relayURL, room)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	sub := &subscription{room: room, conn: conn, done: make(chan struct{})}
	go sub.writeLoop()
	go sub.readLoop(s)
	return sub, nil
}

// channelURL maps the relay base URL to the websocket endpoint for a
// room's channel.
func channelURL(relayURL, room string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("channel", ChannelPrefix+room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (sub *subscription) readLoop(s *Session) {
	defer func() {
		sub.cancelled.Store(true)
		_ = sub.conn.Close()
		close(sub.done)
	}()
	sub.conn.SetReadLimit(subReadLimit)
	_ = sub.conn.SetReadDeadline(time.Now().Add(subPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(subPongWait))
	})
	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			if !sub.cancelled.Load() {
				log.Debug().Err(err).Str("room", sub.room).Msg("[subscriber] read")
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Debug().Err(err).Str("room", sub.room).Msg("[subscriber] malformed event")
			continue
		}
		sub.dispatch(s, ev)
	}
}

func (sub *subscription) dispatch(s *Session, ev Event) {
	// Events raced against a room switch belong to the old room.
	if sub.cancelled.Load() {
		return
	}
	switch ev.Type {
	case EventMessage:
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			log.Debug().Err(err).Str("room", sub.room).Msg("[subscriber] malformed message")
			return
		}
		m.Normalize()
		s.apply(sub.room, m)
	case EventPush:
		n := ParsePushPayload(ev.Data)
		if s.onPush != nil {
			s.onPush(sub.room, n)
		}
	case EventPresence:
		var p Presence
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if s.onPresence != nil {
			s.onPresence(p)
		}
	}
}

func (sub *subscription) writeLoop() {
	ticker := time.NewTicker(subPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(subWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// close marks the subscription cancelled, closes the socket and waits
// for the read loop to drain. After close returns no further event
// from this subscription reaches the session.
func (sub *subscription) close() {
	sub.cancelled.Store(true)
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = sub.conn.Close()
	<-sub.done
}
