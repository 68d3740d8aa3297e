package device

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var _ ppp.Device = (*Endpoint)(nil)

// Pipe connects two endpoints back to back. Frames are delivered
// asynchronously and dropped while the receiving endpoint is down.
type Pipe struct {
	a, b *Endpoint

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Endpoint is one side of a Pipe.
type Endpoint struct {
	name   string
	mtu    int
	logger *zap.Logger

	peer    *Endpoint
	handler atomic.Pointer[handlerRef]
	up      atomic.Bool
	closed  atomic.Bool

	frames chan []byte
	done   chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type handlerRef struct{ h Handler }

// NewPipe creates a connected pair of endpoints. queue bounds the frames in
// flight in each direction.
func NewPipe(mtu, queue int, logger *zap.Logger) *Pipe {
	if queue <= 0 {
		queue = 64
	}

	p := &Pipe{
		a: newEndpoint("pipe-a", mtu, queue, logger),
		b: newEndpoint("pipe-b", mtu, queue, logger),
	}
	p.a.peer, p.b.peer = p.b, p.a

	for _, e := range []*Endpoint{p.a, p.b} {
		p.wg.Add(1)
		go func(e *Endpoint) {
			defer p.wg.Done()
			e.deliverLoop()
		}(e)
	}
	return p
}

func newEndpoint(name string, mtu, queue int, logger *zap.Logger) *Endpoint {
	if mtu <= 0 {
		mtu = ppp.DefaultMRU
	}
	return &Endpoint{
		name:   name,
		mtu:    mtu,
		logger: logger,
		frames: make(chan []byte, queue),
		done:   make(chan struct{}),
	}
}

// A returns the first endpoint.
func (p *Pipe) A() *Endpoint { return p.a }

// B returns the second endpoint.
func (p *Pipe) B() *Endpoint { return p.b }

// Close stops delivery on both endpoints and waits for it to finish.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		for _, e := range []*Endpoint{p.a, p.b} {
			e.closed.Store(true)
			close(e.done)
		}
		p.wg.Wait()
	})
}

// Attach sets the handler notified by this endpoint.
func (e *Endpoint) Attach(h Handler) {
	e.handler.Store(&handlerRef{h: h})
}

func (e *Endpoint) notify() Handler {
	if ref := e.handler.Load(); ref != nil {
		return ref.h
	}
	return nil
}

func (e *Endpoint) Name() string { return e.name }

func (e *Endpoint) MTU() int { return e.mtu }

func (e *Endpoint) IsUp() bool { return e.up.Load() }

// Up brings the endpoint up. The handler sees TLSNotify then UpEvent.
func (e *Endpoint) Up() bool {
	if e.closed.Load() {
		return false
	}
	h := e.notify()
	if h != nil && !h.TLSNotify() {
		return false
	}
	if e.up.CompareAndSwap(false, true) {
		e.logger.Debug("Pipe endpoint up", zap.String("device", e.name))
	}
	if h != nil {
		h.UpEvent()
	}
	return true
}

// Down takes the endpoint down. The handler sees TLFNotify then DownEvent.
func (e *Endpoint) Down() bool {
	if !e.up.Load() {
		return true
	}
	h := e.notify()
	if h != nil {
		h.TLFNotify()
	}
	if !e.up.CompareAndSwap(true, false) {
		return true
	}

	e.logger.Debug("Pipe endpoint down", zap.String("device", e.name))
	if h != nil {
		h.DownEvent()
	}
	return true
}

// Send queues frame for the peer endpoint.
func (e *Endpoint) Send(frame []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.up.Load() {
		return ErrDown
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)

	select {
	case e.peer.frames <- cp:
		e.sent.Add(1)
	default:
		e.dropped.Add(1)
		e.logger.Debug("Pipe queue full, dropping frame", zap.String("device", e.name))
	}
	return nil
}

// Sent returns the number of frames handed to the peer.
func (e *Endpoint) Sent() uint64 { return e.sent.Load() }

// Dropped returns the number of frames lost on the way to or at this endpoint.
func (e *Endpoint) Dropped() uint64 { return e.dropped.Load() }

func (e *Endpoint) deliverLoop() {
	for {
		select {
		case <-e.done:
			return
		case frame := <-e.frames:
			h := e.notify()
			if h == nil || !e.up.Load() {
				e.dropped.Add(1)
				continue
			}
			if err := h.ReceiveFrame(frame); err != nil {
				e.logger.Debug("Frame rejected",
					zap.String("device", e.name),
					zap.Error(err),
				)
			}
		}
	}
}
