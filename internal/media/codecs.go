package media

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DefaultCodecs is the fixed router codec set: Opus 48kHz stereo and VP8
// 90kHz with a starting bitrate hint.
func DefaultCodecs(startBitrate int) []Codec {
	return []Codec{
		{
			Kind:        KindAudio,
			PayloadType: 111,
			Capability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
		},
		{
			Kind:        KindVideo,
			PayloadType: 96,
			Capability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeVP8,
				ClockRate:   90000,
				SDPFmtpLine: fmt.Sprintf("x-google-start-bitrate=%d", startBitrate),
			},
		},
	}
}
