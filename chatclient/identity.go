package chatclient

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	nickKey = "nick"
	uidKey  = "uid"
)

// Identity is the self-asserted sender identity persisted alongside
// the room cache: a display name and an anonymous per-installation
// id. Neither is authenticated anywhere.
type Identity struct {
	mu      sync.Mutex
	storage Storage
}

func NewIdentity(storage Storage) *Identity {
	return &Identity{storage: storage}
}

// Username returns the persisted display name, or AnonymousName if
// none has been set.
func (id *Identity) Username() string {
	id.mu.Lock()
	defer id.mu.Unlock()
	raw, ok := id.storage.Get(nickKey)
	if !ok || len(strings.TrimSpace(string(raw))) == 0 {
		return AnonymousName
	}
	return string(raw)
}

// SetUsername persists a new display name. Blank names clear the
// entry, reverting to AnonymousName.
func (id *Identity) SetUsername(name string) error {
	id.mu.Lock()
	defer id.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return id.storage.Delete(nickKey)
	}
	return id.storage.Set(nickKey, []byte(name))
}

// UserID returns the persisted anonymous id, generating and storing a
// fresh one on first use.
func (id *Identity) UserID() string {
	id.mu.Lock()
	defer id.mu.Unlock()
	if raw, ok := id.storage.Get(uidKey); ok && len(raw) >= 8 {
		return string(raw)
	}
	uid := uuid.NewString()
	if err := id.storage.Set(uidKey, []byte(uid)); err != nil {
		log.Debug().Err(err).Msg("[identity] persist uid")
	}
	return uid
}
