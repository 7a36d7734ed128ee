package main

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay-chat/chatclient"
)

const (
	sendBufferSize = 256
	backlogLimit   = chatclient.RoomCapacity
)

// subscriber receives the event stream for one room channel.
type subscriber struct {
	send chan chatclient.Event
}

// push enqueues without blocking, dropping the oldest pending event
// when the subscriber is slow.
func (s *subscriber) push(ev chatclient.Event) {
	select {
	case s.send <- ev:
	default:
		select {
		case <-s.send:
		default:
		}
		s.send <- ev
	}
}

type room struct {
	subs   map[*subscriber]struct{}
	recent []chatclient.Message
}

// hub fans events out to every subscriber of a room channel,
// including the publisher's own subscription. It keeps a bounded
// in-memory backlog per room for replay on attach, seeded from the
// persistent store when one is configured.
type hub struct {
	mu    sync.Mutex
	rooms map[string]*room
	store *historyStore
}

func newHub(store *historyStore) *hub {
	return &hub{rooms: make(map[string]*room), store: store}
}

// getRoom returns the room state, creating it and bootstrapping its
// backlog from the store on first access. Callers hold h.mu.
func (h *hub) getRoom(name string) *room {
	r, ok := h.rooms[name]
	if ok {
		return r
	}
	r = &room{subs: make(map[*subscriber]struct{})}
	if h.store != nil {
		msgs, err := h.store.LoadRecent(name, backlogLimit)
		if err != nil {
			log.Warn().Err(err).Str("room", name).Msg("[hub] load backlog")
		} else {
			r.recent = msgs
		}
	}
	h.rooms[name] = r
	return r
}

// Subscribe attaches a new subscriber to a room. The room's backlog
// is queued ahead of any live event, then the new presence count is
// announced on the channel.
func (h *hub) Subscribe(name string) *subscriber {
	sub := &subscriber{send: make(chan chatclient.Event, sendBufferSize)}
	h.mu.Lock()
	r := h.getRoom(name)
	for _, m := range r.recent {
		if ev, err := chatclient.NewEvent(chatclient.EventMessage, m); err == nil {
			sub.push(ev)
		}
	}
	r.subs[sub] = struct{}{}
	online := len(r.subs)
	h.mu.Unlock()

	h.announcePresence(name, online)
	return sub
}

// Unsubscribe detaches a subscriber and announces the new count.
func (h *hub) Unsubscribe(name string, sub *subscriber) {
	h.mu.Lock()
	r, ok := h.rooms[name]
	if ok {
		delete(r.subs, sub)
	}
	online := 0
	if ok {
		online = len(r.subs)
	}
	h.mu.Unlock()
	if ok {
		h.announcePresence(name, online)
	}
}

// PublishMessage appends to the room backlog, persists when a store
// is configured, and fans the message out to every subscriber.
func (h *hub) PublishMessage(name string, m chatclient.Message) {
	ev, err := chatclient.NewEvent(chatclient.EventMessage, m)
	if err != nil {
		log.Error().Err(err).Str("room", name).Msg("[hub] encode message")
		return
	}
	h.mu.Lock()
	r := h.getRoom(name)
	r.recent = append(r.recent, m)
	if len(r.recent) > backlogLimit {
		r.recent = r.recent[len(r.recent)-backlogLimit:]
	}
	subs := snapshot(r)
	h.mu.Unlock()

	if h.store != nil {
		if err := h.store.Append(name, m); err != nil {
			log.Warn().Err(err).Str("room", name).Msg("[hub] persist message")
		}
	}
	for _, sub := range subs {
		sub.push(ev)
	}
}

// Publish fans a non-message event out without touching the backlog.
func (h *hub) Publish(name string, ev chatclient.Event) {
	h.mu.Lock()
	subs := snapshot(h.getRoom(name))
	h.mu.Unlock()
	for _, sub := range subs {
		sub.push(ev)
	}
}

// Recent returns the room's in-memory backlog.
func (h *hub) Recent(name string) []chatclient.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		return nil
	}
	return append([]chatclient.Message(nil), r.recent...)
}

// Online reports the live subscriber count for a room.
func (h *hub) Online(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		return 0
	}
	return len(r.subs)
}

func (h *hub) announcePresence(name string, online int) {
	ev, err := chatclient.NewEvent(chatclient.EventPresence,
		chatclient.Presence{Room: name, Online: online})
	if err != nil {
		return
	}
	h.Publish(name, ev)
}

func snapshot(r *room) []*subscriber {
	subs := make([]*subscriber, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}
