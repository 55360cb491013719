// Package pionengine implements the media engine binding on pion/webrtc's
// ORTC API. Transports negotiate by exchanged parameters rather than SDP,
// which matches the signaling protocol's wire shapes directly.
package pionengine

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/media"
)

type Config struct {
	// ListenIP restricts candidate gathering to one local address.
	ListenIP string
	// AnnouncedIP is the public address advertised in host candidates.
	AnnouncedIP string
	// MinPort/MaxPort bound the ephemeral UDP range. Zero means unbounded.
	MinPort uint16
	MaxPort uint16
}

type Engine struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("module", "engine.pion").Logger(),
	}
}

// NewRouter builds a dedicated webrtc.API for the room: the registered
// codec set plus the engine's network settings. The API plays the role of
// the per-room worker.
func (e *Engine) NewRouter(_ context.Context, opts media.RouterOptions) (media.Router, error) {
	m := &webrtc.MediaEngine{}
	caps := webrtc.RTPCapabilities{}
	byKind := make(map[media.Kind]webrtc.RTPCodecCapability, len(opts.MediaCodecs))
	for _, c := range opts.MediaCodecs {
		typ := webrtc.RTPCodecTypeAudio
		if c.Kind == media.KindVideo {
			typ = webrtc.RTPCodecTypeVideo
		}
		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: c.Capability,
			PayloadType:        webrtc.PayloadType(c.PayloadType),
		}
		if err := m.RegisterCodec(params, typ); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.Capability.MimeType, err)
		}
		caps.Codecs = append(caps.Codecs, c.Capability)
		if _, ok := byKind[c.Kind]; !ok {
			byKind[c.Kind] = c.Capability
		}
	}

	se := webrtc.SettingEngine{}
	var nets []webrtc.NetworkType
	if opts.Transport.EnableUDP {
		nets = append(nets, webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6)
	}
	if opts.Transport.EnableTCP {
		nets = append(nets, webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6)
	}
	if len(nets) > 0 {
		se.SetNetworkTypes(nets)
	}
	if e.cfg.MinPort > 0 {
		if err := se.SetEphemeralUDPPortRange(e.cfg.MinPort, e.cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}
	if e.cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{e.cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if ip := net.ParseIP(e.cfg.ListenIP); ip != nil && !ip.IsUnspecified() {
		se.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
	}

	r := &router{
		id:         uuid.NewString(),
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		caps:       caps,
		capsByKind: byKind,
		producers:  make(map[string]*producer),
		transports: make(map[string]*transport),
	}
	r.log = e.log.With().Str("router", r.id).Logger()
	r.log.Info().Int("codecs", len(caps.Codecs)).Msg("router created")
	return r, nil
}
