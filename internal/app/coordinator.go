package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
)

// Notifier delivers server-initiated events to a connection. Implemented by
// the signaling adapter; the coordinator stays wire-format agnostic.
type Notifier interface {
	NewProducer(to core.ConnID, producerID string)
	ProducerClosed(to core.ConnID, producerID string)
}

// Coordinator implements the signaling handshake semantics on top of the
// room registries and the media engine binding. Each method handles one
// request from one connection; a failure aborts that request only.
type Coordinator struct {
	Registry *Registry
	Rooms    *RoomManager
	Notifier Notifier
}

// JoinRoom resolves or creates the room and returns the router's negotiated
// capabilities. Membership is recorded by the manager before this returns,
// so another member's disconnect can no longer tear the room down under a
// joiner; the registry mapping is for request routing and broadcasts.
func (c *Coordinator) JoinRoom(ctx context.Context, conn core.ConnID, key string) (webrtc.RTPCapabilities, error) {
	room, err := c.Rooms.Join(ctx, conn, key)
	if err != nil {
		return webrtc.RTPCapabilities{}, err
	}
	c.Registry.SetRoom(conn, key)
	return room.Router().RTPCapabilities(), nil
}

// CreateTransport requests a transport from the room's router. The SCTP
// flag follows the client offering sctpCapabilities in its request.
func (c *Coordinator) CreateTransport(ctx context.Context, conn core.ConnID, key string, producing, sctp bool) (media.TransportParams, error) {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return media.TransportParams{}, err
	}
	opts := c.Rooms.TransportOptions()
	opts.EnableSCTP = sctp
	tr, err := room.Router().CreateTransport(ctx, opts)
	if err != nil {
		return media.TransportParams{}, fmt.Errorf("create transport: %w", err)
	}
	room.AddTransport(&core.TransportRecord{
		Transport: tr,
		ID:        tr.ID(),
		Owner:     conn,
		Consuming: !producing,
	})
	log.Info().Str("module", "app.session").Str("conn", string(conn)).Str("room", key).
		Str("transport", tr.ID()).Bool("producing", producing).Msg("transport created")
	return tr.Params(), nil
}

// ConnectTransport completes the DTLS handshake of the matching transport.
func (c *Coordinator) ConnectTransport(conn core.ConnID, key, transportID string, producing bool, params media.ConnectParams) error {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return err
	}
	tr, err := room.Transport(conn, !producing, transportID)
	if err != nil {
		return err
	}
	if err := tr.Connect(params); err != nil {
		return fmt.Errorf("connect transport %s: %w", transportID, err)
	}
	return nil
}

// Produce creates a producer on the connection's producing transport and
// announces it to every other room member. The second return value reports
// whether this is not the room's first producer.
func (c *Coordinator) Produce(ctx context.Context, conn core.ConnID, key, transportID string, kind media.Kind, rtp media.RTPParameters) (string, bool, error) {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return "", false, err
	}
	tr, err := room.Transport(conn, false, transportID)
	if err != nil {
		return "", false, err
	}
	p, err := tr.Produce(ctx, kind, rtp)
	if err != nil {
		return "", false, fmt.Errorf("produce on transport %s: %w", transportID, err)
	}
	count := room.AddProducer(&core.ProducerRecord{Producer: p, ID: p.ID(), Owner: conn, Kind: kind})
	log.Info().Str("module", "app.session").Str("conn", string(conn)).Str("room", key).
		Str("producer", p.ID()).Str("kind", string(kind)).Msg("producer created")

	// The engine may close the producer on its own (stream ended, transport
	// died). Propagate that to whoever is consuming it. The disconnect
	// reconciler extracts records before closing, so this fires into an
	// already-clean registry there and degrades to a no-op.
	producerID := p.ID()
	p.OnClose(func() { c.producerClosed(key, producerID) })

	if c.Notifier != nil {
		for _, m := range c.Registry.MembersOfRoom(key) {
			if m.Conn == conn {
				continue
			}
			c.Notifier.NewProducer(m.Conn, p.ID())
		}
	}
	return p.ID(), count > 1, nil
}

func (c *Coordinator) Producers(key string) ([]core.ProducerInfo, error) {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return nil, err
	}
	return room.Producers(), nil
}

// ConsumeResult is the payload the consuming client needs to set up
// playback.
type ConsumeResult struct {
	ID            string              `json:"id"`
	ProducerID    string              `json:"producerId"`
	Kind          media.Kind          `json:"kind"`
	RTPParameters media.RTPParameters `json:"rtpParameters"`
}

// Consume checks consumability first; a refusal creates nothing and is
// reported as ErrConsumptionRefused. On success the consumer starts paused
// and awaits the client's resume signal.
func (c *Coordinator) Consume(ctx context.Context, conn core.ConnID, key, transportID, producerID string, caps webrtc.RTPCapabilities) (*ConsumeResult, error) {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return nil, err
	}
	if !room.Router().CanConsume(producerID, caps) {
		return nil, core.ErrConsumptionRefused
	}
	tr, err := room.Transport(conn, true, transportID)
	if err != nil {
		return nil, err
	}
	cons, err := tr.Consume(ctx, producerID, caps)
	if err != nil {
		return nil, fmt.Errorf("consume producer %s: %w", producerID, err)
	}
	room.AddConsumer(&core.ConsumerRecord{
		Consumer:   cons,
		ID:         cons.ID(),
		Owner:      conn,
		ProducerID: producerID,
	})
	log.Info().Str("module", "app.session").Str("conn", string(conn)).Str("room", key).
		Str("consumer", cons.ID()).Str("producer", producerID).Msg("consumer created paused")
	return &ConsumeResult{
		ID:            cons.ID(),
		ProducerID:    producerID,
		Kind:          cons.Kind(),
		RTPParameters: cons.RTPParameters(),
	}, nil
}

// Resume activates a paused consumer. With an id it targets that consumer;
// without, it resumes everything of the connection still awaiting resume.
// Consumers already active are left alone.
func (c *Coordinator) Resume(conn core.ConnID, key, consumerID string) error {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return err
	}
	if consumerID == "" {
		for _, cons := range room.AwaitingConsumers(conn) {
			if err := cons.Resume(); err != nil {
				return fmt.Errorf("resume consumer %s: %w", cons.ID(), err)
			}
		}
		return nil
	}
	cons, awaiting, err := room.ResumeConsumer(conn, consumerID)
	if err != nil {
		return err
	}
	if !awaiting {
		return nil
	}
	if err := cons.Resume(); err != nil {
		return fmt.Errorf("resume consumer %s: %w", consumerID, err)
	}
	return nil
}
