package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay-chat/chatclient"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// Server wires HTTP routes to the hub and history store.
type Server struct {
	name     string
	hub      *hub
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
	connMu   sync.Mutex
	conns    map[*websocket.Conn]struct{}
}

func NewServer(name string, h *hub) *Server {
	return &Server{
		name:  name,
		hub:   h,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// closeAll force-closes all live websocket connections during
// shutdown.
func (s *Server) closeAll() {
	s.connMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// Router builds the HTTP surface served both locally and over the
// portal relay.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", s.handleWS)
	r.Post("/api/messages", s.handleSend)
	r.Post("/api/push", s.handlePush)
	r.Get("/api/rooms/{room}/messages", s.handleHistory)
	return r
}

// wait blocks until all websocket handler goroutines have finished.
func (s *Server) wait() { s.wg.Wait() }

// roomFromChannel strips the channel prefix; a bare room name is also
// accepted.
func roomFromChannel(channel string) string {
	return strings.TrimPrefix(channel, chatclient.ChannelPrefix)
}

// handleSend accepts a posted message, assigns the server identifier,
// republishes it on the room channel (the sender's own subscription
// included) and responds with the canonical message.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req chatclient.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	req.Message = sanitizeBody(req.Message)
	if req.Room == "" || req.Message == "" {
		http.Error(w, "missing room or message", http.StatusBadRequest)
		return
	}

	m := chatclient.Message{
		ID:        uuid.NewString(),
		ClientID:  req.ClientID,
		UserID:    req.UserID,
		Username:  sanitizeName(req.Username),
		Body:      req.Message,
		Timestamp: req.Timestamp,
	}
	m.Normalize()

	s.hub.PublishMessage(req.Room, m)
	log.Debug().Str("room", req.Room).Str("id", m.ID).Msg("[relay] message published")

	writeJSON(w, http.StatusOK, m)
}

// handlePush broadcasts a push payload on a room channel. Absent
// notification fields are left for clients to default.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Room         string                   `json:"room"`
		Notification *chatclient.Notification `json:"notification,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	ev, err := chatclient.NewEvent(chatclient.EventPush,
		chatclient.PushPayload{Notification: req.Notification})
	if err != nil {
		http.Error(w, "encode push payload", http.StatusInternalServerError)
		return
	}
	s.hub.Publish(req.Room, ev)
	w.WriteHeader(http.StatusAccepted)
}

// handleHistory serves the recent backlog for a room.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	limit := backlogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < backlogLimit {
			limit = n
		}
	}
	msgs := s.hub.Recent(room)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []chatclient.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleWS attaches a websocket to a room channel. The backlog is
// replayed ahead of live traffic; duplicates across replay and live
// delivery are the client reconciler's problem by design of the id
// rules.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = r.URL.Query().Get("room")
	}
	room := roomFromChannel(channel)
	if room == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("[relay] upgrade websocket")
		return
	}

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()

	sub := s.hub.Subscribe(room)
	done := make(chan struct{})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(conn, sub, done)
	}()
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer func() {
			s.hub.Unsubscribe(room, sub)
			s.connMu.Lock()
			delete(s.conns, conn)
			s.connMu.Unlock()
			_ = conn.Close()
		}()
		s.readLoop(conn)
	}()
}

// readLoop drains the client side of the socket; subscribers only
// listen, so anything but a close or pong is discarded.
func (s *Server) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("[relay] encode response")
	}
}
