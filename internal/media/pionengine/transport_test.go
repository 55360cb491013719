package pionengine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev/signalhub/internal/media"
)

func newTestTransport(t *testing.T) media.Transport {
	t.Helper()
	engine := New(Config{ListenIP: "127.0.0.1"})
	r, err := engine.NewRouter(t.Context(), media.RouterOptions{
		MediaCodecs: media.DefaultCodecs(1000),
		Transport:   media.TransportOptions{EnableUDP: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	tr, err := r.CreateTransport(t.Context(), media.TransportOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestConnectWithoutRemoteICEFails(t *testing.T) {
	tr := newTestTransport(t)
	err := tr.Connect(media.ConnectParams{})
	assert.ErrorContains(t, err, "missing remote ice parameters")
}

// A failed connect must leave the transport unconnected: the retry has to
// reach the ICE stack again instead of acking a handshake that never ran.
func TestFailedConnectIsRetriable(t *testing.T) {
	tr := newTestTransport(t)

	bad := media.ConnectParams{ICEParameters: &webrtc.ICEParameters{}}
	err := tr.Connect(bad)
	require.Error(t, err)

	err = tr.Connect(bad)
	require.Error(t, err, "second connect must hit the same validation, not report success")
}
