package core

// Frame is a raw signaling payload.
type Frame []byte

// ConnID identifies one signaling connection. A new id is assigned per
// websocket connection.
type ConnID string

// Peer abstracts the signaling transport endpoint of a connection.
// Owned by the adapter; the adapter must Close() it.
type Peer interface {
	TrySend(Frame) error
	Close()
}
