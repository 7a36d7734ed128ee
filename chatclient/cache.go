package chatclient

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

const roomKeyPrefix = "room:"

// RoomCache maps room names to ordered message lists, persisted one
// storage entry per room. Rooms persist independently; there is no
// cross-room atomicity.
type RoomCache struct {
	mu       sync.RWMutex
	storage  Storage
	capacity int
}

// NewRoomCache wraps storage with a cache bounded at capacity
// messages per room. A non-positive capacity falls back to
// RoomCapacity.
func NewRoomCache(storage Storage, capacity int) *RoomCache {
	if capacity <= 0 {
		capacity = RoomCapacity
	}
	return &RoomCache{storage: storage, capacity: capacity}
}

// Get returns the ordered message list for a room. Unseen rooms and
// corrupt stored entries both yield an empty list.
func (c *RoomCache) Get(room string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.storage.Get(roomKeyPrefix + room)
	if !ok {
		return nil
	}
	var list []Message
	if err := json.Unmarshal(raw, &list); err != nil {
		log.Debug().Err(err).Str("room", room).Msg("[cache] discarding corrupt room entry")
		return nil
	}
	return list
}

// Set persists the list for a room, trimmed to the newest entries
// within capacity.
func (c *RoomCache) Set(room string, list []Message) error {
	if len(list) > c.capacity {
		list = list[len(list)-c.capacity:]
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.Set(roomKeyPrefix+room, raw)
}

// Clear drops a single room's history.
func (c *RoomCache) Clear(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.Delete(roomKeyPrefix + room)
}

// Capacity reports the per-room bound.
func (c *RoomCache) Capacity() int { return c.capacity }
