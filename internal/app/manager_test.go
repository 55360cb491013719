package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev/signalhub/internal/app"
	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
	"github.com/avdeev/signalhub/internal/media/mediatest"
)

type stubPeer struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (p *stubPeer) TrySend(f core.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return nil
}

func (p *stubPeer) Close() {}

type recNotifier struct {
	mu         sync.Mutex
	newProd    map[core.ConnID][]string
	closedProd map[core.ConnID][]string
}

func newRecNotifier() *recNotifier {
	return &recNotifier{
		newProd:    make(map[core.ConnID][]string),
		closedProd: make(map[core.ConnID][]string),
	}
}

func (n *recNotifier) NewProducer(to core.ConnID, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newProd[to] = append(n.newProd[to], id)
}

func (n *recNotifier) ProducerClosed(to core.ConnID, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closedProd[to] = append(n.closedProd[to], id)
}

func (n *recNotifier) newProducers(to core.ConnID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.newProd[to]...)
}

func (n *recNotifier) closedProducers(to core.ConnID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.closedProd[to]...)
}

func newCoordinator(engine media.Engine) (*app.Coordinator, *recNotifier) {
	n := newRecNotifier()
	c := &app.Coordinator{
		Registry: app.NewRegistry(),
		Rooms: app.NewRoomManager(engine, media.DefaultCodecs(1000), media.TransportOptions{
			EnableUDP: true,
			EnableTCP: true,
			PreferUDP: true,
		}),
		Notifier: n,
	}
	return c, n
}

func bind(c *app.Coordinator, conns ...core.ConnID) {
	for _, conn := range conns {
		c.Registry.Bind(conn, &stubPeer{}, nil)
	}
}

func TestConcurrentFirstJoinCreatesOneRouter(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)

	const joiners = 16
	conns := make([]core.ConnID, joiners)
	for i := range conns {
		conns[i] = core.ConnID(string(rune('a' + i)))
		bind(coord, conns[i])
	}

	caps := make([]webrtc.RTPCapabilities, joiners)
	errs := make([]error, joiners)
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn core.ConnID) {
			defer wg.Done()
			caps[i], errs[i] = coord.JoinRoom(context.Background(), conn, "fresh")
		}(i, conn)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, engine.Routers(), 1)
	for i := 1; i < joiners; i++ {
		assert.Equal(t, caps[0], caps[i])
	}
	assert.Equal(t, joiners, coord.Registry.RoomSize("fresh"))
}

func TestJoinDifferentRoomsGetDifferentRouters(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")

	_, err := coord.JoinRoom(context.Background(), "a", "r1")
	require.NoError(t, err)
	_, err = coord.JoinRoom(context.Background(), "b", "r2")
	require.NoError(t, err)

	assert.Len(t, engine.Routers(), 2)
}

func TestFailedRoomCreationIsRetriable(t *testing.T) {
	engine := mediatest.NewEngine()
	engine.RouterErr = errors.New("worker spawn failed")
	coord, _ := newCoordinator(engine)
	bind(coord, "a")

	_, err := coord.JoinRoom(context.Background(), "a", "r1")
	require.Error(t, err)
	_, err = coord.Rooms.Get("r1")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)

	engine.RouterErr = nil
	_, err = coord.JoinRoom(context.Background(), "a", "r1")
	require.NoError(t, err)
	assert.Len(t, engine.Routers(), 1)
}

func TestGetUnknownRoomFails(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a")

	_, err := coord.CreateTransport(context.Background(), "a", "ghost", true, false)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}
