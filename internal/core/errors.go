package core

import "errors"

// Lookup misses and refusals are terminal for the single requesting
// operation; they never touch other connections' state.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrTransportNotFound  = errors.New("transport not found")
	ErrProducerNotFound   = errors.New("producer not found")
	ErrConsumerNotFound   = errors.New("consumer not found")
	ErrConsumptionRefused = errors.New("consumption refused")
)
