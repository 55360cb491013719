package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
)

func (ctl *Controller) handleCreateTransport(
	ctx context.Context,
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type             string          `json:"type"`
		Room             string          `json:"room"`
		Producing        bool            `json:"producing"`
		SCTPCapabilities json.RawMessage `json:"sctpCapabilities"`
		ConnectionID     string          `json:"connectionId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad createWebRtcTransport payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": "createWebRtcTransport", "error": "bad_payload"})
		return
	}

	sctp := len(req.SCTPCapabilities) > 0 && string(req.SCTPCapabilities) != "null"
	params, err := ctl.Coord.CreateTransport(ctx, conn, req.Room, req.Producing, sctp)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Str("room", req.Room).Msg("createWebRtcTransport")
		ctl.sendError(p, "createWebRtcTransport", err)
		return
	}

	ctl.sendJSON(p, struct {
		Type      string `json:"type"`
		Producing bool   `json:"producing"`
		media.TransportParams
	}{"transportCreated", req.Producing, params})
}

func (ctl *Controller) handleConnectTransport(
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	ctl.connectTransport(conn, p, data, "connectWebRtcTransport", true)
}

// handleConsumerConnect is the consuming-side variant of transport connect.
func (ctl *Controller) handleConsumerConnect(
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	ctl.connectTransport(conn, p, data, "receiveConsumerConnect", false)
}

func (ctl *Controller) connectTransport(
	conn core.ConnID,
	p *wsPeer,
	data []byte,
	request string,
	producing bool,
) {
	var req struct {
		Type                string `json:"type"`
		Room                string `json:"room"`
		TransportID         string `json:"transportId"`
		ConsumerTransportID string `json:"consumerTransportId"`
		ConnectionID        string `json:"connectionId"`
		media.ConnectParams
	}
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connect payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": request, "error": "bad_payload"})
		return
	}
	transportID := req.TransportID
	if !producing {
		transportID = req.ConsumerTransportID
	}

	if err := ctl.Coord.ConnectTransport(conn, req.Room, transportID, producing, req.ConnectParams); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).
			Str("transport", transportID).Msg(request)
		ctl.sendError(p, request, err)
		return
	}

	ctl.sendJSON(p, struct {
		Type        string `json:"type"`
		TransportID string `json:"transportId"`
	}{"transportConnected", transportID})
}
