package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avdeev/signalhub/internal/core"
)

// Disconnect releases everything the connection owns, in dependency order:
// consumers, then producers, then transports. Registry entries are removed
// up front under the room lock, so a second invocation finds nothing and
// every step degrades to a no-op. Release errors are logged and never stop
// the remaining cleanup.
func (c *Coordinator) Disconnect(conn core.ConnID) {
	logger := log.With().Str("module", "app.reconciler").Str("conn", string(conn)).Logger()

	key, ok := c.Registry.RoomOf(conn)
	if !ok {
		c.Registry.Unbind(conn)
		return
	}

	if room, err := c.Rooms.Get(key); err == nil {
		consumers, producers, transports := room.TakeConnection(conn)

		for _, rec := range consumers {
			if err := rec.Consumer.Close(); err != nil {
				logger.Error().Err(err).Str("consumer", rec.ID).Msg("consumer close")
			}
		}

		// Closing a producer fires its close hook, which in turn releases
		// other connections' consumers of that stream and tells their
		// owners (producerClosed below). The disconnecting connection's
		// own consumers are already gone, so it is never notified.
		for _, rec := range producers {
			if err := rec.Producer.Close(); err != nil {
				logger.Error().Err(err).Str("producer", rec.ID).Msg("producer close")
			}
		}

		for _, rec := range transports {
			if err := rec.Transport.Close(); err != nil {
				logger.Error().Err(err).Str("transport", rec.ID).Msg("transport close")
			}
		}

		logger.Info().Str("room", key).
			Int("consumers", len(consumers)).
			Int("producers", len(producers)).
			Int("transports", len(transports)).
			Msg("connection reconciled")
	}

	c.Registry.Unbind(conn)
	c.Rooms.Leave(conn, key)
}

// producerClosed is the close hook of every producer: drop its record,
// release the consumers that were subscribed to it and notify their owners
// so they can tear down playback. Runs for engine-initiated closes and for
// closes issued by the reconciler alike; the registry extraction is
// exactly-once either way.
func (c *Coordinator) producerClosed(key, producerID string) {
	room, err := c.Rooms.Get(key)
	if err != nil {
		return
	}
	room.RemoveProducer(producerID)
	for owner, recs := range room.TakeConsumersOf([]string{producerID}) {
		for _, rec := range recs {
			if err := rec.Consumer.Close(); err != nil {
				log.Error().Err(err).Str("module", "app.reconciler").
					Str("consumer", rec.ID).Msg("orphan consumer close")
			}
			if c.Notifier != nil {
				c.Notifier.ProducerClosed(owner, rec.ProducerID)
			}
		}
	}
}
