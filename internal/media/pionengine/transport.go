package pionengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/avdeev/signalhub/internal/media"
)

var errProducerGone = errors.New("producer not found on router")

type transport struct {
	id     string
	router *router
	log    zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	sctp     *webrtc.SCTPTransport

	params media.TransportParams

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *transport) ID() string                    { return t.id }
func (t *transport) Params() media.TransportParams { return t.params }

// Connect starts ICE in the controlled role and completes the DTLS
// handshake with the far end's parameters. Repeated connects after success
// are no-ops; a failed connect leaves the transport unconnected so the
// client may retry with corrected parameters.
func (t *transport) Connect(p media.ConnectParams) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if p.ICEParameters == nil {
		t.mu.Unlock()
		return errors.New("missing remote ice parameters")
	}
	// Reserve the slot so a concurrent connect does not double-start.
	t.connected = true
	t.mu.Unlock()

	fail := func(err error) error {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		return err
	}

	role := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, *p.ICEParameters, &role); err != nil {
		return fail(fmt.Errorf("ice start: %w", err))
	}
	if err := t.dtls.Start(p.DTLSParameters); err != nil {
		return fail(fmt.Errorf("dtls start: %w", err))
	}
	t.log.Info().Msg("transport connected")
	return nil
}

// Produce attaches an RTP receiver for the client's stream and starts the
// forward loop feeding the producer's shared local track.
func (t *transport) Produce(_ context.Context, kind media.Kind, rtp media.RTPParameters) (media.Producer, error) {
	typ := webrtc.RTPCodecTypeAudio
	if kind == media.KindVideo {
		typ = webrtc.RTPCodecTypeVideo
	}

	recv, err := t.router.api.NewRTPReceiver(typ, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp receiver: %w", err)
	}
	encodings := make([]webrtc.RTPDecodingParameters, 0, len(rtp.Encodings))
	for _, e := range rtp.Encodings {
		encodings = append(encodings, webrtc.RTPDecodingParameters{RTPCodingParameters: e})
	}
	if err := recv.Receive(webrtc.RTPReceiveParameters{Encodings: encodings}); err != nil {
		_ = recv.Stop()
		return nil, fmt.Errorf("receive: %w", err)
	}

	capability, ok := t.router.capsByKind[kind]
	if !ok {
		_ = recv.Stop()
		return nil, fmt.Errorf("no codec registered for kind %s", kind)
	}
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(capability, id, "signalhub")
	if err != nil {
		_ = recv.Stop()
		return nil, fmt.Errorf("new local track: %w", err)
	}

	p := newProducer(id, kind, capability, recv, local, t.router, t.log)
	t.router.addProducer(p)
	go p.loop()
	t.log.Info().Str("producer", id).Str("kind", string(kind)).Msg("producer attached")
	return p, nil
}

// Consume wires an RTP sender for the producer's shared local track onto
// this transport. The sender stays idle until the consumer is resumed.
func (t *transport) Consume(_ context.Context, producerID string, caps webrtc.RTPCapabilities) (media.Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, errProducerGone
	}
	if !codecSupported(p.capability, caps) {
		return nil, fmt.Errorf("capabilities cannot consume producer %s", producerID)
	}

	sender, err := t.router.api.NewRTPSender(p.local, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	params := media.RTPParameters{Codecs: sendParams.Codecs}
	for _, e := range sendParams.Encodings {
		params.Encodings = append(params.Encodings, e.RTPCodingParameters)
	}

	c := &consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       p.kind,
		sender:     sender,
		sendParams: sendParams,
		params:     params,
		log:        t.log,
	}
	// Source producer gone means this consumer is dead too.
	p.OnClose(func() { _ = c.Close() })
	t.log.Info().Str("consumer", c.id).Str("producer", producerID).Msg("consumer attached")
	return c, nil
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var first error
	if t.sctp != nil {
		if err := t.sctp.Stop(); err != nil && first == nil {
			first = err
		}
	}
	if err := t.dtls.Stop(); err != nil && first == nil {
		first = err
	}
	if err := t.ice.Stop(); err != nil && first == nil {
		first = err
	}
	if err := t.gatherer.Close(); err != nil && first == nil {
		first = err
	}
	t.router.removeTransport(t.id)
	t.log.Info().Msg("transport closed")
	return first
}
