package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, p *wsPeer) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump processes the connection's requests in arrival order. Its exit,
// whatever the cause, is the disconnect event: the reconciler runs here,
// once.
func (ctl *Controller) readPump(ctx context.Context, conn core.ConnID, p *wsPeer) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(conn)).Msg("readPump closing")
		p.Close()
		ctl.Coord.Disconnect(conn)
		ctl.limiter.Forget(conn)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := p.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("readPump read error")
				}
				return
			}
			ctl.handleMessage(ctx, conn, p, data)
		}
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, conn core.ConnID, p *wsPeer, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	// Ping keeps the connection warm and stays outside the budget.
	if env.Type != "ping" && !ctl.limiter.Allow(conn) {
		log.Warn().Str("module", "signal").Str("conn", string(conn)).Str("type", env.Type).Msg("rate limited")
		ctl.sendJSON(p, struct {
			Type    string `json:"type"`
			Request string `json:"request"`
			Error   string `json:"error"`
		}{"error", env.Type, "rate_limited"})
		return
	}

	switch env.Type {
	case "joinRoom":
		ctl.handleJoinRoom(ctx, conn, p, data)
	case "createWebRtcTransport":
		ctl.handleCreateTransport(ctx, conn, p, data)
	case "connectWebRtcTransport":
		ctl.handleConnectTransport(conn, p, data)
	case "getProducers":
		ctl.handleGetProducers(conn, p, data)
	case "produce":
		ctl.handleProduce(ctx, conn, p, data)
	case "connectConsumer":
		ctl.handleConsume(ctx, conn, p, data)
	case "receiveConsumerConnect":
		ctl.handleConsumerConnect(conn, p, data)
	case "resume":
		ctl.handleResume(conn, p, data)
	case "ping":
		ctl.handlePing(p)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(p core.Peer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := p.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

// sendError reports a failed request explicitly instead of dropping the
// response.
func (ctl *Controller) sendError(p core.Peer, request string, err error) {
	ctl.sendJSON(p, struct {
		Type    string `json:"type"`
		Request string `json:"request"`
		Error   string `json:"error"`
	}{"error", request, reasonFor(err)})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, core.ErrTransportNotFound):
		return "transport_not_found"
	case errors.Is(err, core.ErrProducerNotFound):
		return "producer_not_found"
	case errors.Is(err, core.ErrConsumerNotFound):
		return "consumer_not_found"
	case errors.Is(err, core.ErrConsumptionRefused):
		return "consumption_refused"
	default:
		return "engine_failure"
	}
}
