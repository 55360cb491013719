package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
)

func (ctl *Controller) handleJoinRoom(
	ctx context.Context,
	conn core.ConnID,
	p *wsPeer,
	data []byte,
) {
	var req struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Room == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad joinRoom payload")
		ctl.sendJSON(p, map[string]any{"type": "error", "request": "joinRoom", "error": "bad_payload"})
		return
	}

	caps, err := ctl.Coord.JoinRoom(ctx, conn, req.Room)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Str("room", req.Room).Msg("joinRoom")
		ctl.sendError(p, "joinRoom", err)
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(conn)).Str("room", req.Room).Msg("joined")
	ctl.sendJSON(p, struct {
		Type            string `json:"type"`
		Room            string `json:"room"`
		RTPCapabilities any    `json:"rtpCapabilities"`
	}{"rtpCapabilities", req.Room, caps})
}
