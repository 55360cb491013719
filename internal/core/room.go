package core

import (
	"sync"

	"github.com/avdeev/signalhub/internal/media"
)

// Room is the per-room resource registry. It owns every record in it; the
// engine handles inside the records are the only server-side references to
// the engine's resources. All mutation goes through the room mutex, engine
// calls happen outside it.
type Room struct {
	Key string

	router media.Router

	mu         sync.RWMutex
	transports map[ConnID][]*TransportRecord
	producers  []*ProducerRecord
	consumers  map[ConnID][]*ConsumerRecord
}

func NewRoom(key string, router media.Router) *Room {
	return &Room{
		Key:        key,
		router:     router,
		transports: make(map[ConnID][]*TransportRecord),
		consumers:  make(map[ConnID][]*ConsumerRecord),
	}
}

func (r *Room) Router() media.Router { return r.router }

func (r *Room) AddTransport(rec *TransportRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[rec.Owner] = append(r.transports[rec.Owner], rec)
}

// Transport resolves a transport by (owner, type, id). A miss is a hard
// precondition failure for the caller.
func (r *Room) Transport(owner ConnID, consuming bool, id string) (media.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.transports[owner] {
		if rec.Consuming == consuming && rec.ID == id {
			return rec.Transport, nil
		}
	}
	return nil, ErrTransportNotFound
}

// AddProducer appends to the room's ordered producer sequence and returns
// the new length.
func (r *Room) AddProducer(rec *ProducerRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers = append(r.producers, rec)
	return len(r.producers)
}

// Producers returns an ordered snapshot for late joiners.
func (r *Room) Producers() []ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProducerInfo, 0, len(r.producers))
	for _, rec := range r.producers {
		out = append(out, ProducerInfo{ID: rec.ID, Owner: rec.Owner, Kind: rec.Kind})
	}
	return out
}

// RemoveProducer drops one producer from the ordered sequence, if still
// present. A close event may chase a record the reconciler already
// extracted; that is a no-op here while the caller still releases the
// producer's orphaned consumers.
func (r *Room) RemoveProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.producers {
		if rec.ID == id {
			r.producers = append(r.producers[:i], r.producers[i+1:]...)
			return
		}
	}
}

func (r *Room) AddConsumer(rec *ConsumerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.awaitingResume = true
	r.consumers[rec.Owner] = append(r.consumers[rec.Owner], rec)
}

// ResumeConsumer flips the consumer's resume flag. The second return value
// reports whether the consumer was still awaiting resume; a repeated
// readiness signal is a no-op, not an error.
func (r *Room) ResumeConsumer(owner ConnID, id string) (media.Consumer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.consumers[owner] {
		if rec.ID == id {
			if !rec.awaitingResume {
				return rec.Consumer, false, nil
			}
			rec.awaitingResume = false
			return rec.Consumer, true, nil
		}
	}
	return nil, false, ErrConsumerNotFound
}

// AwaitingConsumers flips and returns every consumer of the connection that
// still awaits resume, oldest first.
func (r *Room) AwaitingConsumers(owner ConnID) []media.Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []media.Consumer
	for _, rec := range r.consumers[owner] {
		if rec.awaitingResume {
			rec.awaitingResume = false
			out = append(out, rec.Consumer)
		}
	}
	return out
}

// TakeConnection removes and returns every record owned by the connection.
// Called once by the disconnect reconciler; a second call finds nothing.
func (r *Room) TakeConnection(owner ConnID) (consumers []*ConsumerRecord, producers []*ProducerRecord, transports []*TransportRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumers = r.consumers[owner]
	delete(r.consumers, owner)

	kept := r.producers[:0]
	for _, rec := range r.producers {
		if rec.Owner == owner {
			producers = append(producers, rec)
			continue
		}
		kept = append(kept, rec)
	}
	r.producers = kept

	transports = r.transports[owner]
	delete(r.transports, owner)
	return consumers, producers, transports
}

// TakeConsumersOf removes every consumer record whose source producer is in
// ids, grouped by owning connection. Used to propagate producer closure.
func (r *Room) TakeConsumersOf(ids []string) map[ConnID][]*ConsumerRecord {
	closed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		closed[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	taken := make(map[ConnID][]*ConsumerRecord)
	for owner, recs := range r.consumers {
		kept := recs[:0]
		for _, rec := range recs {
			if _, ok := closed[rec.ProducerID]; ok {
				taken[owner] = append(taken[owner], rec)
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(r.consumers, owner)
		} else {
			r.consumers[owner] = kept
		}
	}
	return taken
}

func (r *Room) NumProducers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.producers)
}

// NumConnections counts distinct connections holding transports.
func (r *Room) NumConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports)
}
