package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/app"
	"github.com/avdeev/signalhub/internal/config"
	"github.com/avdeev/signalhub/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Controller is the websocket signaling adapter. It decodes request
// envelopes, runs them through the coordinator and encodes responses; it
// also delivers the coordinator's server-initiated notifications.
type Controller struct {
	Coord *app.Coordinator

	readLimit  int64
	pingPeriod time.Duration
	limiter    *ConnRateLimiter
}

func NewController(coord *app.Coordinator, cfg *config.Config) *Controller {
	return &Controller{
		Coord:      coord,
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
		limiter:    NewConnRateLimiter(cfg.MsgRateLimit, cfg.MsgRateInterval),
	}
}

type wsPeer struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (p *wsPeer) TrySend(f core.Frame) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("connection closed")
	}
	select {
	case p.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (p *wsPeer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	_ = p.conn.Close()
	p.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps. Each
// websocket connection gets a fresh connection id; the reconciler runs
// exactly once when the read pump exits.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	connID := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).
		Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	peer := &wsPeer{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Coord.Registry.Bind(connID, peer, cancel)

	go ctl.writePump(ctx, peer)
	go ctl.readPump(ctx, connID, peer)

	// The client needs its connection id to tag later requests.
	ctl.sendJSON(peer, struct {
		Type         string      `json:"type"`
		ConnectionID core.ConnID `json:"connectionId"`
	}{"connected", connID})
}

// NewProducer implements app.Notifier: announce a fresh producer to a room
// peer.
func (ctl *Controller) NewProducer(to core.ConnID, producerID string) {
	peer, ok := ctl.Coord.Registry.Peer(to)
	if !ok {
		return
	}
	ctl.sendJSON(peer, struct {
		Type       string `json:"type"`
		ProducerID string `json:"producerId"`
	}{"newProducer", producerID})
}

// ProducerClosed implements app.Notifier: a producer this connection was
// consuming is gone.
func (ctl *Controller) ProducerClosed(to core.ConnID, producerID string) {
	peer, ok := ctl.Coord.Registry.Peer(to)
	if !ok {
		return
	}
	ctl.sendJSON(peer, struct {
		Type       string `json:"type"`
		ProducerID string `json:"producerId"`
	}{"producerClosed", producerID})
}
