package core

import "github.com/avdeev/signalhub/internal/media"

// TransportRecord ties an engine transport to the connection that owns it.
// A transport is either producing or consuming, never both.
type TransportRecord struct {
	Transport media.Transport
	ID        string
	Owner     ConnID
	Consuming bool
}

// ProducerRecord tags an engine producer with its owner. Producer ids are
// unique per room, assigned by the engine.
type ProducerRecord struct {
	Producer media.Producer
	ID       string
	Owner    ConnID
	Kind     media.Kind
}

// ConsumerRecord tracks one subscription to a producer. awaitingResume is
// the explicit resume state: set on creation, cleared exactly once by the
// client's readiness signal. Guarded by the room mutex.
type ConsumerRecord struct {
	Consumer   media.Consumer
	ID         string
	Owner      ConnID
	ProducerID string

	awaitingResume bool
}

// ProducerInfo is a read-only view for snapshots sent to clients.
type ProducerInfo struct {
	ID    string     `json:"producerId"`
	Owner ConnID     `json:"connectionId"`
	Kind  media.Kind `json:"kind"`
}
