package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
	"github.com/avdeev/signalhub/internal/media/mediatest"
)

// Two-party scenario: A produces, B consumes, A disconnects. Covers the
// whole handshake plus reconciliation.
func TestDisconnectReleasesEverythingAndNotifiesConsumers(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, notifier := newCoordinator(engine)
	bind(coord, "a", "b")

	capsA, err := coord.JoinRoom(context.Background(), "a", "r1")
	require.NoError(t, err)
	capsB, err := coord.JoinRoom(context.Background(), "b", "r1")
	require.NoError(t, err)
	assert.Equal(t, capsA, capsB)
	require.Len(t, engine.Routers(), 1)
	router := engine.Routers()[0]

	produceTr := createTransport(t, coord, "a", "r1", true)
	require.NoError(t, coord.ConnectTransport("a", "r1", produceTr, true, media.ConnectParams{}))
	producerID, notFirst, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)
	assert.False(t, notFirst)
	assert.Equal(t, []string{producerID}, notifier.newProducers("b"))

	consumeTr := createTransport(t, coord, "b", "r1", false)
	require.NoError(t, coord.ConnectTransport("b", "r1", consumeTr, false, media.ConnectParams{}))
	res, err := coord.Consume(context.Background(), "b", "r1", consumeTr, producerID, router.RTPCapabilities())
	require.NoError(t, err)
	require.NoError(t, coord.Resume("b", "r1", res.ID))

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)

	coord.Disconnect("a")

	// B is told A's producer is gone, and the orphaned consumer is closed.
	assert.Equal(t, []string{producerID}, notifier.closedProducers("b"))

	// No registry in the room references A anymore; the producer list no
	// longer carries A's producer.
	assert.Empty(t, room.Producers())
	assert.Equal(t, 1, room.NumConnections())
	_, err = room.Transport("a", false, produceTr)
	assert.ErrorIs(t, err, core.ErrTransportNotFound)
	_, ok := coord.Registry.Peer("a")
	assert.False(t, ok)
	assert.Equal(t, 1, coord.Registry.RoomSize("r1"))

	// B's consumer of A's stream is closed; B's transport survives.
	_, _, err = room.ResumeConsumer("b", res.ID)
	assert.ErrorIs(t, err, core.ErrConsumerNotFound)
	_, err = room.Transport("b", true, consumeTr)
	assert.NoError(t, err)
}

// The engine can close a producer without any disconnect (stream ended).
// The record must go away and consumers of the stream must be told.
func TestEngineClosedProducerNotifiesConsumers(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, notifier := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	producerID, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)

	consumeTr := createTransport(t, coord, "b", "r1", false)
	res, err := coord.Consume(context.Background(), "b", "r1", consumeTr, producerID, engine.Routers()[0].RTPCapabilities())
	require.NoError(t, err)

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	cons, _, err := room.ResumeConsumer("b", res.ID)
	require.NoError(t, err)

	handle, ok := engine.Routers()[0].Producer(producerID)
	require.True(t, ok)
	require.NoError(t, handle.Close())

	assert.Equal(t, []string{producerID}, notifier.closedProducers("b"))
	assert.Empty(t, room.Producers())
	assert.True(t, cons.(*mediatest.Consumer).Closed())

	// Both connections are still in the room; nothing else was touched.
	assert.Equal(t, 2, coord.Registry.RoomSize("r1"))
	_, err = room.Transport("a", false, produceTr)
	assert.NoError(t, err)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, notifier := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	_, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)

	coord.Disconnect("a")
	closedOnce := notifier.closedProducers("b")
	coord.Disconnect("a")

	// The second run finds nothing: no double releases, no extra
	// notifications, same end state.
	assert.Equal(t, closedOnce, notifier.closedProducers("b"))
	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	assert.Empty(t, room.Producers())
	assert.Equal(t, 1, coord.Registry.RoomSize("r1"))
}

func TestDisconnectBeforeJoinIsNoop(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a")

	coord.Disconnect("a")
	_, ok := coord.Registry.Peer("a")
	assert.False(t, ok)
	assert.Empty(t, engine.Routers())
}

func TestLastDisconnectRemovesRoomAndClosesRouter(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")
	router := engine.Routers()[0]

	coord.Disconnect("a")
	assert.False(t, router.Closed())
	_, err := coord.Rooms.Get("r1")
	require.NoError(t, err)

	coord.Disconnect("b")
	assert.True(t, router.Closed())
	_, err = coord.Rooms.Get("r1")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

// A joiner is a member as soon as the manager hands out the room, before
// its registry row exists. The last previous member disconnecting in that
// gap must not tear the room down under the joiner.
func TestJoinerKeepsRoomAliveThroughLastDisconnect(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")

	room, err := coord.Rooms.Join(context.Background(), "b", "r1")
	require.NoError(t, err)

	coord.Disconnect("a")

	assert.False(t, engine.Routers()[0].Closed())
	got, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	assert.Same(t, room, got)

	// B finishes its join and keeps working against the same router.
	caps, err := coord.JoinRoom(context.Background(), "b", "r1")
	require.NoError(t, err)
	assert.Equal(t, engine.Routers()[0].RTPCapabilities(), caps)
	require.Len(t, engine.Routers(), 1)

	coord.Disconnect("b")
	assert.True(t, engine.Routers()[0].Closed())
	_, err = coord.Rooms.Get("r1")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestDisconnectClosesEngineResources(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	producerID, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)

	consumeTrID := createTransport(t, coord, "b", "r1", false)
	res, err := coord.Consume(context.Background(), "b", "r1", consumeTrID, producerID, engine.Routers()[0].RTPCapabilities())
	require.NoError(t, err)

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	produceHandle, err := room.Transport("a", false, produceTr)
	require.NoError(t, err)
	cons, _, err := room.ResumeConsumer("b", res.ID)
	require.NoError(t, err)

	coord.Disconnect("a")

	assert.True(t, produceHandle.(*mediatest.Transport).Closed())
	assert.True(t, cons.(*mediatest.Consumer).Closed())
}
