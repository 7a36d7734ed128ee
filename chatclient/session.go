package chatclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("chatclient: session closed")

// UpdateHandler observes every cache change for a room: the full list
// after reconciliation, the message that triggered it, and what the
// reconciler did with it.
type UpdateHandler func(room string, list []Message, latest Message, outcome Outcome)

// PushHandler observes push notifications for the active room.
type PushHandler func(room string, n Notification)

// PresenceHandler observes live subscriber counts for the active room.
type PresenceHandler func(p Presence)

// Session owns one user's chat state: the room cache, the persisted
// identity, the send pipeline and at most one live room subscription.
// All components hang off the session rather than ambient globals, so
// two sessions in one process never share state.
type Session struct {
	relayURL string
	httpc    *http.Client
	storage  Storage
	cache    *RoomCache
	ident    *Identity

	onUpdate   UpdateHandler
	onPush     PushHandler
	onPresence PresenceHandler

	// applyMu serializes read-reconcile-write cycles on the cache.
	applyMu sync.Mutex

	mu     sync.Mutex
	room   string
	sub    *subscription
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithStorage supplies the durable backing store. The session takes
// ownership and closes it on Close. Defaults to in-memory storage.
func WithStorage(s Storage) Option {
	return func(sess *Session) { sess.storage = s }
}

// WithHTTPClient overrides the HTTP client used by the send pipeline.
func WithHTTPClient(c *http.Client) Option {
	return func(sess *Session) { sess.httpc = c }
}

// WithCapacity overrides the per-room cache bound.
func WithCapacity(n int) Option {
	return func(sess *Session) { sess.cache = NewRoomCache(sess.storage, n) }
}

// WithUpdateHandler registers the cache-change observer.
func WithUpdateHandler(h UpdateHandler) Option {
	return func(sess *Session) { sess.onUpdate = h }
}

// WithPushHandler registers the push-notification observer.
func WithPushHandler(h PushHandler) Option {
	return func(sess *Session) { sess.onPush = h }
}

// WithPresenceHandler registers the presence observer.
func WithPresenceHandler(h PresenceHandler) Option {
	return func(sess *Session) { sess.onPresence = h }
}

// NewSession builds a session talking to the relay at relayURL
// (scheme http or https, no trailing slash required).
func NewSession(relayURL string, opts ...Option) *Session {
	sess := &Session{
		relayURL: strings.TrimRight(relayURL, "/"),
		httpc:    &http.Client{Timeout: 10 * time.Second},
		storage:  NewMemStorage(),
	}
	for _, opt := range opts {
		opt(sess)
	}
	if sess.cache == nil {
		sess.cache = NewRoomCache(sess.storage, RoomCapacity)
	} else if sess.cache.storage != sess.storage {
		// WithCapacity may have run before WithStorage.
		sess.cache = NewRoomCache(sess.storage, sess.cache.Capacity())
	}
	sess.ident = NewIdentity(sess.storage)
	return sess
}

// Join switches the session to a room. The previous room's
// subscription is torn down before the new one delivers anything, so
// stale events from an abandoned room never reach the new room's
// state. An in-flight send to the previous room is not cancelled.
func (s *Session) Join(ctx context.Context, room string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.sub
	s.sub = nil
	s.room = room
	s.mu.Unlock()

	if old != nil {
		old.close()
	}

	sub, err := s.subscribe(ctx, room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || s.room != room {
		s.mu.Unlock()
		sub.close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Leave tears down the active subscription without closing the
// session.
func (s *Session) Leave() {
	s.mu.Lock()
	old := s.sub
	s.sub = nil
	s.room = ""
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
}

// Room reports the active room name, empty if none.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns the cached ordered list for a room.
func (s *Session) Messages(room string) []Message {
	return s.cache.Get(room)
}

// ClearRoom drops a room's cached history.
func (s *Session) ClearRoom(room string) error {
	return s.cache.Clear(room)
}

// Username returns the persisted display name.
func (s *Session) Username() string { return s.ident.Username() }

// SetUsername persists a new display name.
func (s *Session) SetUsername(name string) error { return s.ident.SetUsername(name) }

// UserID returns the persisted anonymous user id.
func (s *Session) UserID() string { return s.ident.UserID() }

// Close tears down the subscription and the backing storage.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old := s.sub
	s.sub = nil
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
	return s.storage.Close()
}

// apply runs one reconcile cycle for a room as a snapshot-replace:
// read the list, merge, write it back, then notify the observer.
func (s *Session) apply(room string, m Message) {
	s.applyMu.Lock()
	list := s.cache.Get(room)
	list, outcome := Reconcile(list, m)
	err := s.cache.Set(room, list)
	s.applyMu.Unlock()
	if err != nil {
		// Persistence failures degrade to a stale cache, never a crash.
		logSendError(err, room, "persist room cache")
	}
	if s.onUpdate != nil {
		s.onUpdate(room, list, m, outcome)
	}
}
