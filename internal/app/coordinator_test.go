package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev/signalhub/internal/app"
	"github.com/avdeev/signalhub/internal/core"
	"github.com/avdeev/signalhub/internal/media"
	"github.com/avdeev/signalhub/internal/media/mediatest"
)

func join(t *testing.T, coord *app.Coordinator, conn core.ConnID, room string) {
	t.Helper()
	_, err := coord.JoinRoom(context.Background(), conn, room)
	require.NoError(t, err)
}

func createTransport(t *testing.T, coord *app.Coordinator, conn core.ConnID, room string, producing bool) string {
	t.Helper()
	params, err := coord.CreateTransport(context.Background(), conn, room, producing, false)
	require.NoError(t, err)
	require.NotEmpty(t, params.ID)
	return params.ID
}

func TestProduceReportsFirstAndBroadcastsToOthers(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, notifier := newCoordinator(engine)
	bind(coord, "a", "b", "c")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")
	join(t, coord, "c", "r1")

	trID := createTransport(t, coord, "a", "r1", true)
	require.NoError(t, coord.ConnectTransport("a", "r1", trID, true, media.ConnectParams{}))

	first, notFirst, err := coord.Produce(context.Background(), "a", "r1", trID, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)
	assert.False(t, notFirst)

	second, notFirst, err := coord.Produce(context.Background(), "a", "r1", trID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)
	assert.True(t, notFirst)

	// Peers hear about both producers, the originator about neither.
	assert.Equal(t, []string{first, second}, notifier.newProducers("b"))
	assert.Equal(t, []string{first, second}, notifier.newProducers("c"))
	assert.Empty(t, notifier.newProducers("a"))

	infos, err := coord.Producers("r1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first, infos[0].ID)
	assert.Equal(t, second, infos[1].ID)
}

func TestProduceOnConsumingTransportFails(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a")
	join(t, coord, "a", "r1")

	trID := createTransport(t, coord, "a", "r1", false)
	_, _, err := coord.Produce(context.Background(), "a", "r1", trID, media.KindVideo, media.RTPParameters{})
	assert.ErrorIs(t, err, core.ErrTransportNotFound)
}

func TestRefusedConsumeLeavesNoRecord(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	producerID, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)

	consumeTr := createTransport(t, coord, "b", "r1", false)

	engine.Routers()[0].Consumable = false
	_, err = coord.Consume(context.Background(), "b", "r1", consumeTr, producerID, engine.Routers()[0].RTPCapabilities())
	assert.ErrorIs(t, err, core.ErrConsumptionRefused)

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	assert.Empty(t, room.AwaitingConsumers("b"))
}

func TestConsumeUnknownProducerRefused(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "b")
	join(t, coord, "b", "r1")
	consumeTr := createTransport(t, coord, "b", "r1", false)

	_, err := coord.Consume(context.Background(), "b", "r1", consumeTr, "ghost", engine.Routers()[0].RTPCapabilities())
	assert.ErrorIs(t, err, core.ErrConsumptionRefused)
}

func TestConsumeAndResumeOnce(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	producerID, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, media.KindVideo, media.RTPParameters{})
	require.NoError(t, err)

	consumeTr := createTransport(t, coord, "b", "r1", false)
	res, err := coord.Consume(context.Background(), "b", "r1", consumeTr, producerID, engine.Routers()[0].RTPCapabilities())
	require.NoError(t, err)
	assert.Equal(t, producerID, res.ProducerID)
	assert.Equal(t, media.KindVideo, res.Kind)

	// The first readiness signal resumes; repeats are no-ops.
	require.NoError(t, coord.Resume("b", "r1", res.ID))
	require.NoError(t, coord.Resume("b", "r1", res.ID))

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	cons, awaiting, err := room.ResumeConsumer("b", res.ID)
	require.NoError(t, err)
	assert.False(t, awaiting)
	assert.Equal(t, 1, cons.(*mediatest.Consumer).ResumeCalls())
}

func TestResumeWithoutIDResumesAllAwaiting(t *testing.T) {
	engine := mediatest.NewEngine()
	coord, _ := newCoordinator(engine)
	bind(coord, "a", "b")
	join(t, coord, "a", "r1")
	join(t, coord, "b", "r1")

	produceTr := createTransport(t, coord, "a", "r1", true)
	consumeTr := createTransport(t, coord, "b", "r1", false)

	var results []*app.ConsumeResult
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		producerID, _, err := coord.Produce(context.Background(), "a", "r1", produceTr, kind, media.RTPParameters{})
		require.NoError(t, err)
		res, err := coord.Consume(context.Background(), "b", "r1", consumeTr, producerID, engine.Routers()[0].RTPCapabilities())
		require.NoError(t, err)
		results = append(results, res)
	}

	require.NoError(t, coord.Resume("b", "r1", ""))

	room, err := coord.Rooms.Get("r1")
	require.NoError(t, err)
	for _, res := range results {
		cons, awaiting, err := room.ResumeConsumer("b", res.ID)
		require.NoError(t, err)
		assert.False(t, awaiting)
		assert.Equal(t, 1, cons.(*mediatest.Consumer).ResumeCalls())
	}
}
