package pionengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/avdeev/signalhub/internal/media"
)

var errRouterClosed = errors.New("router closed")

type router struct {
	id         string
	api        *webrtc.API
	caps       webrtc.RTPCapabilities
	capsByKind map[media.Kind]webrtc.RTPCodecCapability
	log        zerolog.Logger

	mu         sync.RWMutex
	closed     bool
	producers  map[string]*producer
	transports map[string]*transport
}

func (r *router) RTPCapabilities() webrtc.RTPCapabilities { return r.caps }

func (r *router) CanConsume(producerID string, caps webrtc.RTPCapabilities) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return codecSupported(p.capability, caps)
}

// codecSupported reports whether the offered capabilities can receive a
// stream of the producer's codec.
func codecSupported(producerCodec webrtc.RTPCodecCapability, caps webrtc.RTPCapabilities) bool {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, producerCodec.MimeType) && c.ClockRate == producerCodec.ClockRate {
			return true
		}
	}
	return false
}

// CreateTransport builds the ORTC stack: gatherer, ICE and DTLS transports,
// optionally SCTP. It blocks until gathering completes so the returned
// params carry the full candidate list.
func (r *router) CreateTransport(ctx context.Context, opts media.TransportOptions) (media.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errRouterClosed
	}

	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("new ice gatherer: %w", err)
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("new dtls transport: %w", err)
	}
	var sctp *webrtc.SCTPTransport
	if opts.EnableSCTP {
		sctp = r.api.NewSCTPTransport(dtls)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	t := &transport{
		id:       uuid.NewString(),
		router:   r,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		sctp:     sctp,
	}
	t.log = r.log.With().Str("transport", t.id).Logger()
	t.params = media.TransportParams{
		ID:             t.id,
		ICEParameters:  iceParams,
		ICECandidates:  candidates,
		DTLSParameters: dtlsParams,
	}
	if sctp != nil {
		sctpCaps := sctp.GetCapabilities()
		t.params.SCTPCapabilities = &sctpCaps
	}

	r.mu.Lock()
	r.transports[t.id] = t
	r.mu.Unlock()

	t.log.Info().Int("candidates", len(candidates)).Msg("transport created")
	return t, nil
}

func (r *router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	producers := make([]*producer, 0, len(r.producers))
	for _, p := range r.producers {
		producers = append(producers, p)
	}
	transports := make([]*transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.producers = make(map[string]*producer)
	r.transports = make(map[string]*transport)
	r.mu.Unlock()

	var first error
	for _, p := range producers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, t := range transports {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.log.Info().Msg("router closed")
	return first
}

func (r *router) addProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}
