package chatclient

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

// Storage is the small key/value surface the cache persists through.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// memStorage keeps entries in process memory only.
type memStorage struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemStorage returns an in-memory Storage for ephemeral sessions
// and tests.
func NewMemStorage() Storage {
	return &memStorage{m: make(map[string][]byte)}
}

func (s *memStorage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (s *memStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStorage) Close() error { return nil }

// pebbleStorage persists entries in a PebbleDB at a local directory.
type pebbleStorage struct {
	db *pebble.DB
}

// OpenStorage opens (creating if needed) a durable Storage rooted at
// dir.
func OpenStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleStorage{db: db}, nil
}

func (s *pebbleStorage) Get(key string) ([]byte, bool) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	out := append([]byte(nil), val...)
	_ = closer.Close()
	return out, true
}

func (s *pebbleStorage) Set(key string, value []byte) error {
	return s.db.Set([]byte(key), value, pebble.Sync)
}

func (s *pebbleStorage) Delete(key string) error {
	err := s.db.Delete([]byte(key), pebble.Sync)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (s *pebbleStorage) Close() error { return s.db.Close() }
