// Package mediatest provides a deterministic in-memory media engine for
// tests: sequential ids, recorded close/resume calls, and injectable
// failures.
package mediatest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/avdeev/signalhub/internal/media"
)

type Engine struct {
	mu      sync.Mutex
	seq     atomic.Int64
	routers []*Router

	// RouterErr makes NewRouter fail until cleared.
	RouterErr error
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.seq.Add(1))
}

func (e *Engine) NewRouter(_ context.Context, opts media.RouterOptions) (media.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.RouterErr != nil {
		return nil, e.RouterErr
	}
	caps := webrtc.RTPCapabilities{}
	for _, c := range opts.MediaCodecs {
		caps.Codecs = append(caps.Codecs, c.Capability)
	}
	r := &Router{
		id:         e.next("router"),
		engine:     e,
		caps:       caps,
		Consumable: true,
		producers:  make(map[string]*Producer),
	}
	e.routers = append(e.routers, r)
	return r, nil
}

func (e *Engine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Router(nil), e.routers...)
}

type Router struct {
	id     string
	engine *Engine
	caps   webrtc.RTPCapabilities

	// Consumable is the CanConsume verdict for known producers.
	Consumable   bool
	TransportErr error

	mu         sync.Mutex
	closed     bool
	transports []*Transport
	producers  map[string]*Producer
}

func (r *Router) ID() string                              { return r.id }
func (r *Router) RTPCapabilities() webrtc.RTPCapabilities { return r.caps }

func (r *Router) CanConsume(producerID string, _ webrtc.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.producers[producerID]
	return known && r.Consumable
}

func (r *Router) CreateTransport(_ context.Context, _ media.TransportOptions) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TransportErr != nil {
		return nil, r.TransportErr
	}
	t := &Transport{id: r.engine.next("transport"), router: r}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) Producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) NumProducers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.producers)
}

type Transport struct {
	id     string
	router *Router

	ProduceErr error
	ConsumeErr error

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() media.TransportParams {
	return media.TransportParams{
		ID:            t.id,
		ICEParameters: webrtc.ICEParameters{UsernameFragment: "ufrag-" + t.id, Password: "pwd-" + t.id},
	}
}

func (t *Transport) Connect(_ media.ConnectParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(_ context.Context, kind media.Kind, _ media.RTPParameters) (media.Producer, error) {
	if t.ProduceErr != nil {
		return nil, t.ProduceErr
	}
	p := &Producer{id: t.router.engine.next("producer"), kind: kind}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID string, _ webrtc.RTPCapabilities) (media.Consumer, error) {
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown producer %s", producerID)
	}
	c := &Consumer{id: t.router.engine.next("consumer"), producerID: producerID, kind: p.kind}
	return c, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	id   string
	kind media.Kind

	CloseErr error

	mu      sync.Mutex
	closed  bool
	onClose []func()
}

func (p *Producer) ID() string       { return p.id }
func (p *Producer) Kind() media.Kind { return p.kind }

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fns := p.onClose
	p.onClose = nil
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return p.CloseErr
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	id         string
	producerID string
	kind       media.Kind

	CloseErr error

	mu          sync.Mutex
	closed      bool
	resumeCalls int
}

func (c *Consumer) ID() string         { return c.id }
func (c *Consumer) ProducerID() string { return c.producerID }
func (c *Consumer) Kind() media.Kind   { return c.kind }

func (c *Consumer) RTPParameters() media.RTPParameters {
	return media.RTPParameters{MID: c.id}
}

func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumeCalls++
	return nil
}

func (c *Consumer) ResumeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeCalls
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
