package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
)

type peerEntry struct {
	RoomKey string
	Peer    core.Peer
	Cancel  context.CancelFunc
}

// Registry is the process-wide connection table: connection id to peer
// endpoint and, once joined, to its room key. Exactly one room per
// connection at a time.
type Registry struct {
	mu    sync.RWMutex
	peers map[core.ConnID]*peerEntry
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[core.ConnID]*peerEntry)}
}

func (r *Registry) Bind(conn core.ConnID, peer core.Peer, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[conn] = &peerEntry{Peer: peer, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("bound connection")
}

func (r *Registry) SetRoom(conn core.ConnID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[conn]
	if !ok {
		return false
	}
	e.RoomKey = key
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("room", key).Msg("joined room")
	return true
}

func (r *Registry) RoomOf(conn core.ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[conn]
	if !ok || e.RoomKey == "" {
		return "", false
	}
	return e.RoomKey, true
}

func (r *Registry) Peer(conn core.ConnID) (core.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.peers[conn]; ok {
		return e.Peer, true
	}
	return nil, false
}

// Unbind removes the connection entry entirely, cancelling its context,
// and reports whether it existed. The reconciler relies on this for
// idempotency.
func (r *Registry) Unbind(conn core.ConnID) bool {
	r.mu.Lock()
	e, ok := r.peers[conn]
	if ok {
		delete(r.peers, conn)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("unbound connection")
	return true
}

type Member struct {
	Conn core.ConnID
	Peer core.Peer
}

func (r *Registry) MembersOfRoom(key string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.peers))
	for conn, e := range r.peers {
		if e.RoomKey == key {
			out = append(out, Member{Conn: conn, Peer: e.Peer})
		}
	}
	return out
}

func (r *Registry) RoomSize(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.peers {
		if e.RoomKey == key {
			n++
		}
	}
	return n
}
