package pionengine

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/avdeev/signalhub/internal/media"
)

// producer reads the client's inbound RTP and fans it into a shared local
// track; every consumer's sender binds that track.
type producer struct {
	id         string
	kind       media.Kind
	capability webrtc.RTPCodecCapability
	recv       *webrtc.RTPReceiver
	local      *webrtc.TrackLocalStaticRTP
	router     *router
	log        zerolog.Logger

	mu      sync.Mutex
	closed  bool
	onClose []func()
}

func newProducer(id string, kind media.Kind, capability webrtc.RTPCodecCapability, recv *webrtc.RTPReceiver, local *webrtc.TrackLocalStaticRTP, r *router, log zerolog.Logger) *producer {
	return &producer{
		id:         id,
		kind:       kind,
		capability: capability,
		recv:       recv,
		local:      local,
		router:     r,
		log:        log.With().Str("producer", id).Logger(),
	}
}

func (p *producer) ID() string       { return p.id }
func (p *producer) Kind() media.Kind { return p.kind }

func (p *producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

func (p *producer) loop() {
	track := p.recv.Track()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.log.Info().Err(err).Msg("read loop ended")
			_ = p.Close()
			return
		}
		p.forward(pkt)
	}
}

func (p *producer) forward(pkt *rtp.Packet) {
	if err := p.local.WriteRTP(pkt); err != nil {
		p.log.Debug().Err(err).Msg("forward write")
	}
}

func (p *producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fns := p.onClose
	p.onClose = nil
	p.mu.Unlock()

	p.router.removeProducer(p.id)
	err := p.recv.Stop()
	for _, fn := range fns {
		fn()
	}
	p.log.Info().Msg("producer closed")
	return err
}
