// Package media defines the binding between the signaling server and the
// SFU media engine. The server never touches RTP directly; it holds engine
// handles through these interfaces and releases them on disconnect.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Codec is one entry of a router's fixed codec set.
type Codec struct {
	Kind        Kind
	PayloadType uint8
	Capability  webrtc.RTPCodecCapability
}

type RouterOptions struct {
	MediaCodecs []Codec
	// Transport is the network profile of every transport the router
	// creates. ICE fixes the candidate networks per router, so the
	// UDP/TCP selection binds here; EnableSCTP stays per-transport.
	Transport TransportOptions
}

type TransportOptions struct {
	EnableUDP bool
	EnableTCP bool
	// PreferUDP keeps UDP candidates ranked above TCP when both are
	// enabled. UDP host candidates already outrank TCP in standard ICE
	// priority, so engines may treat this as the default.
	PreferUDP  bool
	EnableSCTP bool
}

// TransportParams is everything the far end needs to connect to a transport.
type TransportParams struct {
	ID               string                   `json:"id"`
	ICEParameters    webrtc.ICEParameters     `json:"iceParameters"`
	ICECandidates    []webrtc.ICECandidate    `json:"iceCandidates"`
	DTLSParameters   webrtc.DTLSParameters    `json:"dtlsParameters"`
	SCTPCapabilities *webrtc.SCTPCapabilities `json:"sctpParameters,omitempty"`
}

// ConnectParams completes a transport's handshake. ICEParameters is optional:
// parameter-style engines learn the remote ufrag from binding requests, the
// pion engine needs it up front.
type ConnectParams struct {
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
	ICEParameters  *webrtc.ICEParameters `json:"iceParameters,omitempty"`
}

// RTPParameters describes a single stream, produce direction or consume
// direction.
type RTPParameters struct {
	MID       string                       `json:"mid,omitempty"`
	Codecs    []webrtc.RTPCodecParameters  `json:"codecs,omitempty"`
	Encodings []webrtc.RTPCodingParameters `json:"encodings,omitempty"`
}

// Engine creates routers. One router per room.
type Engine interface {
	NewRouter(ctx context.Context, opts RouterOptions) (Router, error)
}

type Router interface {
	RTPCapabilities() webrtc.RTPCapabilities
	CanConsume(producerID string, caps webrtc.RTPCapabilities) bool
	CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	Close() error
}

type Transport interface {
	ID() string
	Params() TransportParams
	Connect(params ConnectParams) error
	Produce(ctx context.Context, kind Kind, rtp RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps webrtc.RTPCapabilities) (Consumer, error)
	Close() error
}

type Producer interface {
	ID() string
	Kind() Kind
	// OnClose registers a callback fired once when the producer closes,
	// whatever the reason.
	OnClose(func())
	Close() error
}

// Consumer is created idle; media flows only after Resume.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() RTPParameters
	Resume() error
	Close() error
}
