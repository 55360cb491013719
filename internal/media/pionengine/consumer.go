package pionengine

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/avdeev/signalhub/internal/media"
)

// consumer holds an RTP sender created idle. Resume starts it; until then
// no packets of the shared track reach this transport.
type consumer struct {
	id         string
	producerID string
	kind       media.Kind
	sender     *webrtc.RTPSender
	sendParams webrtc.RTPSendParameters
	params     media.RTPParameters
	log        zerolog.Logger

	mu     sync.Mutex
	active bool
	closed bool
}

func (c *consumer) ID() string                         { return c.id }
func (c *consumer) ProducerID() string                 { return c.producerID }
func (c *consumer) Kind() media.Kind                   { return c.kind }
func (c *consumer) RTPParameters() media.RTPParameters { return c.params }

func (c *consumer) Resume() error {
	c.mu.Lock()
	if c.closed || c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = true
	c.mu.Unlock()

	if err := c.sender.Send(c.sendParams); err != nil {
		return fmt.Errorf("sender send: %w", err)
	}
	c.log.Info().Str("consumer", c.id).Msg("consumer resumed")
	return nil
}

func (c *consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.sender.Stop(); err != nil {
		return fmt.Errorf("sender stop: %w", err)
	}
	c.log.Info().Str("consumer", c.id).Msg("consumer closed")
	return nil
}
