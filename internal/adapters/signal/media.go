package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/app"
	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
)

func (ctl *Controller) handleProduce(
	ctx context.Context,
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type          string              `json:"type"`
		Room          string              `json:"room"`
		TransportID   string              `json:"transportId"`
		Kind          media.Kind          `json:"kind"`
		RTPParameters media.RTPParameters `json:"rtpParameters"`
		AppData       json.RawMessage     `json:"appData"`
		ConnectionID  string              `json:"connectionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad produce payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": "produce", "error": "bad_payload"})
		return
	}

	id, notFirst, err := ctl.Coord.Produce(ctx, conn, req.Room, req.TransportID, req.Kind, req.RTPParameters)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).
			Str("transport", req.TransportID).Msg("produce")
		ctl.sendError(p, "produce", err)
		return
	}

	ctl.sendJSON(p, struct {
		Type                    string `json:"type"`
		ID                      string `json:"id"`
		NotFirstCreatedProducer bool   `json:"notFirstCreatedProducer"`
	}{"produced", id, notFirst})
}

func (ctl *Controller) handleGetProducers(
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad getProducers payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": "getProducers", "error": "bad_payload"})
		return
	}

	producers, err := ctl.Coord.Producers(req.Room)
	if err != nil {
		ctl.sendError(p, "getProducers", err)
		return
	}

	ctl.sendJSON(p, struct {
		Type      string              `json:"type"`
		Producers []core.ProducerInfo `json:"producers"`
	}{"producers", producers})
}

func (ctl *Controller) handleConsume(
	ctx context.Context,
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type                string                 `json:"type"`
		Room                string                 `json:"room"`
		RTPCapabilities     webrtc.RTPCapabilities `json:"rtpCapabilities"`
		ProducerServerID    string                 `json:"producerServerId"`
		ConsumerTransportID string                 `json:"consumerTransportId"`
		ConnectionID        string                 `json:"connectionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connectConsumer payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": "connectConsumer", "error": "bad_payload"})
		return
	}

	res, err := ctl.Coord.Consume(ctx, conn, req.Room, req.ConsumerTransportID, req.ProducerServerID, req.RTPCapabilities)
	if err != nil {
		// A refusal is an expected outcome, reported as its own message so
		// the client can stop waiting.
		if errors.Is(err, core.ErrConsumptionRefused) {
			log.Info().Str("module", "signal").Str("conn", string(conn)).
				Str("producer", req.ProducerServerID).Msg("consume refused")
			ctl.sendJSON(p, struct {
				Type       string `json:"type"`
				ProducerID string `json:"producerId"`
			}{"consumeRefused", req.ProducerServerID})
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).
			Str("producer", req.ProducerServerID).Msg("connectConsumer")
		ctl.sendError(p, "connectConsumer", err)
		return
	}

	ctl.sendJSON(p, struct {
		Type                string             `json:"type"`
		Params              *app.ConsumeResult `json:"params"`
		ConsumerTransportID string             `json:"consumerTransportId"`
	}{"consumerCreated", res, req.ConsumerTransportID})
}

func (ctl *Controller) handleResume(
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type       string `json:"type"`
		Room       string `json:"room"`
		ConsumerID string `json:"consumerId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad resume payload")
		return
	}
	room := req.Room
	if room == "" {
		// Clients may send a bare resume; fall back to the joined room.
		if joined, ok := ctl.Coord.Registry.RoomOf(conn); ok {
			room = joined
		}
	}

	if err := ctl.Coord.Resume(conn, room, req.ConsumerID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).
			Str("consumer", req.ConsumerID).Msg("resume")
		ctl.sendError(p, "resume", err)
	}
}
