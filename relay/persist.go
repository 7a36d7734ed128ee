package main

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/gosuda/relay-chat/chatclient"
)

// historyStore persists room history in a PebbleDB key-value store.
// Keys are "<room> 0x00 <8-byte big-endian seq>", so each room's
// messages form a contiguous, insertion-ordered key range.
type historyStore struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[string]uint64
}

func openHistoryStore(dir string) (*historyStore, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &historyStore{db: db, next: make(map[string]uint64)}, nil
}

func roomBounds(room string) (lower, upper []byte) {
	lower = append([]byte(room), 0x00)
	upper = append([]byte(room), 0x01)
	return lower, upper
}

func roomKey(room string, seq uint64) []byte {
	key := make([]byte, 0, len(room)+9)
	key = append(key, room...)
	key = append(key, 0x00)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// nextSeq returns the next sequence number for a room, discovering it
// from the last stored key on first use. Callers hold s.mu.
func (s *historyStore) nextSeq(room string) (uint64, error) {
	if seq, ok := s.next[room]; ok {
		s.next[room] = seq + 1
		return seq, nil
	}
	lower, upper := roomBounds(room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	var seq uint64
	if it.Last() {
		if key := it.Key(); len(key) >= 8 {
			seq = binary.BigEndian.Uint64(key[len(key)-8:]) + 1
		}
	}
	s.next[room] = seq + 1
	return seq, nil
}

func (s *historyStore) Append(room string, m chatclient.Message) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.nextSeq(room)
	if err != nil {
		return err
	}
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Set(roomKey(room, seq), val, pebble.Sync)
}

// LoadRecent loads the most recent limit messages for a room in
// insertion order. A non-positive limit loads everything. Entries
// that fail to decode are skipped.
func (s *historyStore) LoadRecent(room string, limit int) ([]chatclient.Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	lower, upper := roomBounds(room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	out := make([]chatclient.Message, 0, 64)
	if limit > 0 {
		// Walk backwards limit entries, then decode forwards.
		n := 0
		for ok := it.Last(); ok && n < limit; ok = it.Prev() {
			n++
		}
		if n < limit {
			it.First()
		} else {
			it.Next()
		}
	} else {
		it.First()
	}
	for ; it.Valid(); it.Next() {
		var m chatclient.Message
		if err := json.Unmarshal(it.Value(), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *historyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
