package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
)

// roomEntry serializes creation and membership per key: the first joiner
// creates the engine router under the entry mutex while joins to other
// keys proceed. Membership lives here, not in the connection registry, so
// a join and the empty-room teardown are mutually exclusive. dead marks
// an entry the teardown already unlinked; a joiner that raced it starts
// over and gets a fresh entry.
type roomEntry struct {
	mu      sync.Mutex
	dead    bool
	room    *core.Room
	members map[core.ConnID]struct{}
}

// RoomManager owns room lifecycle: create-on-first-join with exactly one
// router per key, lookup, and teardown once the last member leaves.
// Lock order is always the manager mutex before an entry mutex.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry

	engine        media.Engine
	codecs        []media.Codec
	transportOpts media.TransportOptions
}

func NewRoomManager(engine media.Engine, codecs []media.Codec, transportOpts media.TransportOptions) *RoomManager {
	return &RoomManager{
		rooms:         make(map[string]*roomEntry),
		engine:        engine,
		codecs:        codecs,
		transportOpts: transportOpts,
	}
}

func (m *RoomManager) TransportOptions() media.TransportOptions { return m.transportOpts }

// Join returns the room for key with conn recorded as a member, creating
// the router on first join. Concurrent first-joins to the same key block
// on the entry mutex and get the single router the winner created; a
// failed creation leaves the entry roomless so a later join retries.
// Joining again is idempotent.
func (m *RoomManager) Join(ctx context.Context, conn core.ConnID, key string) (*core.Room, error) {
	for {
		m.mu.Lock()
		e, ok := m.rooms[key]
		if !ok {
			e = &roomEntry{members: make(map[core.ConnID]struct{})}
			m.rooms[key] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			// Teardown unlinked this entry after we fetched it; the map
			// no longer holds it, so the next pass creates a fresh one.
			e.mu.Unlock()
			continue
		}
		if e.room == nil {
			router, err := m.engine.NewRouter(ctx, media.RouterOptions{
				MediaCodecs: m.codecs,
				Transport:   m.transportOpts,
			})
			if err != nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("create router for room %q: %w", key, err)
			}
			e.room = core.NewRoom(key, router)
			log.Info().Str("module", "app.rooms").Str("room", key).Msg("room created")
		}
		e.members[conn] = struct{}{}
		room := e.room
		e.mu.Unlock()
		return room, nil
	}
}

// Leave removes conn from the room's membership. The last member out
// tears the room down: the entry is unlinked under both mutexes, then the
// router is closed outside them. A joiner racing the teardown never lands
// in the dying room.
func (m *RoomManager) Leave(conn core.ConnID, key string) {
	m.mu.Lock()
	e, ok := m.rooms[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.mu.Lock()
	delete(e.members, conn)
	var room *core.Room
	if len(e.members) == 0 {
		room = e.room
		e.room = nil
		e.dead = true
		delete(m.rooms, key)
	}
	e.mu.Unlock()
	m.mu.Unlock()

	if room == nil {
		return
	}
	if err := room.Router().Close(); err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", key).Msg("router close")
	}
	log.Info().Str("module", "app.rooms").Str("room", key).Msg("room removed")
}

func (m *RoomManager) Get(key string) (*core.Room, error) {
	m.mu.RLock()
	e, ok := m.rooms[key]
	m.mu.RUnlock()
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	e.mu.Lock()
	room := e.room
	e.mu.Unlock()
	if room == nil {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

type RoomInfo struct {
	Key         string `json:"room"`
	Producers   int    `json:"producers"`
	Connections int    `json:"connections"`
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	entries := make(map[string]*roomEntry, len(m.rooms))
	for k, e := range m.rooms {
		entries[k] = e
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(entries))
	for k, e := range entries {
		e.mu.Lock()
		room := e.room
		members := len(e.members)
		e.mu.Unlock()
		if room == nil {
			continue
		}
		out = append(out, RoomInfo{Key: k, Producers: room.NumProducers(), Connections: members})
	}
	return out
}
