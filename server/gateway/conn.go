package gateway

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/decred/slog"
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("outbound queue full")
)

// wire is the transport side of a connection. *router.NetworkClient
// satisfies it.
type wire interface {
	Id() string
	SendMessage(msg any) error
}

// Conn is one client connection. Send only queues; a writer goroutine
// drains the queue onto the wire so a slow socket never stalls the caller.
type Conn struct {
	wire    wire
	closeFn func(reason string)
	limit   int
	log     slog.Logger

	mu      sync.Mutex
	queue   []messages.ServerMessage
	closing string // Close reason once a final message was queued
	closed  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once

	joined atomic.Bool
}

func newConn(w wire, closeFn func(reason string), limit int, log slog.Logger) *Conn {
	return &Conn{
		wire:    w,
		closeFn: closeFn,
		limit:   limit,
		log:     log,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.wire.Id() }

func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.closing == ""
}

// Send queues msg. When the queue is full the oldest state update is
// dropped to make room; if there is none the new message is refused.
func (c *Conn) Send(msg messages.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing != "" {
		return ErrClosed
	}
	if len(c.queue) >= c.limit && !c.dropStateUpdateLocked() {
		return ErrQueueFull
	}
	c.queue = append(c.queue, msg)
	c.signal()
	return nil
}

func (c *Conn) dropStateUpdateLocked() bool {
	for i, m := range c.queue {
		if _, ok := m.(messages.StateUpdate); ok {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

// CloseWith queues a final message and closes the connection once it has
// been written.
func (c *Conn) CloseWith(msg messages.ServerMessage, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing != "" {
		return
	}
	c.queue = append(c.queue, msg)
	c.closing = reason
	c.signal()
}

// Close marks the connection closed and stops the writer. Queued messages
// are discarded.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		reason := c.closing
		c.mu.Unlock()

		for _, msg := range batch {
			if err := c.wire.SendMessage(msg); err != nil {
				c.log.Debugf("Write %s to %s failed: %v", msg.Type(), c.ID(), err)
				c.Close()
				return
			}
		}

		if reason != "" {
			c.Close()
			if c.closeFn != nil {
				c.closeFn(reason)
			}
			return
		}
	}
}
