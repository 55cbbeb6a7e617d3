// Package gateway connects websocket clients to the match orchestrator.
package gateway

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/server/rooms"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/decred/slog"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

const (
	defaultQueueSize = 64
	maxIDLength      = 128

	// How long a disconnected client id is remembered, so that a connect
	// callback arriving after the disconnect is refused.
	goneTTL = time.Minute
)

// Dispatcher receives validated client messages and disconnects.
type Dispatcher interface {
	Dispatch(c rooms.Conn, msg messages.ClientMessage)
	HandleDisconnect(c rooms.Conn)
}

// Gateway owns the client connections.
type Gateway struct {
	disp        Dispatcher
	joinTimeout time.Duration
	queueSize   int
	clock       clock.Clock
	log         slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
	gone  map[string]struct{}
}

func New(d Dispatcher, joinTimeout time.Duration, clk clock.Clock, log slog.Logger) *Gateway {
	return &Gateway{
		disp:        d,
		joinTimeout: joinTimeout,
		queueSize:   defaultQueueSize,
		clock:       clk,
		log:         log,
		conns:       make(map[string]*Conn),
		gone:        make(map[string]struct{}),
	}
}

// Bind registers the gateway's callbacks with the necs router.
func (g *Gateway) Bind() {
	router.OnConnect(func(client *router.NetworkClient) {
		g.connect(client, closer(client))
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		if err != nil {
			g.log.Debugf("Client %s disconnected: %v", client.Id(), err)
		}
		g.disconnect(client.Id())
	})

	on[messages.JoinRoom](g)
	on[messages.PaddleMove](g)
	on[messages.PlayerReady](g)
	on[messages.Ping](g)
	on[messages.PauseRequest](g)
	on[messages.ResumeRequest](g)
	on[messages.QuitGame](g)
	on[messages.PlayerExit](g)

	router.OnError(func(client *router.NetworkClient, err error) {
		g.log.Warnf("Client error: %v", err)
		if client == nil {
			return
		}
		if c := g.connect(client, closer(client)); c != nil {
			_ = c.Send(messages.NewError(netconfig.ErrCodeInvalidMessage, "Unrecognized message"))
		}
	})
}

// The router runs OnConnect on its own goroutine while messages are
// processed on the read loop, so a message may arrive first. Handlers
// therefore register the client themselves.
func on[T messages.ClientMessage](g *Gateway) {
	router.On(func(client *router.NetworkClient, msg T) {
		g.handle(client, closer(client), msg)
	})
}

func closer(client *router.NetworkClient) func(reason string) {
	return func(reason string) {
		_ = client.Close(websocket.StatusPolicyViolation, reason)
	}
}

// Serve binds the router and blocks serving websocket clients on port.
func (g *Gateway) Serve(port uint) error {
	g.Bind()
	g.log.Infof("Listening for clients on port %d", port)
	return transports.NewWsServerTransport(port, "", nil).Start()
}

// connect returns the connection for w, registering it on first sight.
// It returns nil for a client whose disconnect was already handled.
func (g *Gateway) connect(w wire, closeFn func(reason string)) *Conn {
	id := w.Id()
	g.mu.Lock()
	if c, ok := g.conns[id]; ok {
		g.mu.Unlock()
		return c
	}
	if _, ok := g.gone[id]; ok {
		g.mu.Unlock()
		return nil
	}
	c := newConn(w, closeFn, g.queueSize, g.log)
	g.conns[id] = c
	g.mu.Unlock()
	go c.writeLoop()

	g.clock.AfterFunc(g.joinTimeout, func() {
		if c.joined.Load() || !c.Open() {
			return
		}
		g.log.Infof("Client %s did not join within %s", c.ID(), g.joinTimeout)
		c.CloseWith(messages.NewError(netconfig.ErrCodeConnectionTimeout, "No join-room received"), "join timeout")
	})

	g.log.Debugf("Client connected: %s", id)
	return c
}

func (g *Gateway) disconnect(id string) {
	g.mu.Lock()
	c, ok := g.conns[id]
	delete(g.conns, id)
	g.gone[id] = struct{}{}
	g.mu.Unlock()

	g.clock.AfterFunc(goneTTL, func() {
		g.mu.Lock()
		delete(g.gone, id)
		g.mu.Unlock()
	})
	if !ok {
		return
	}
	c.Close()
	g.disp.HandleDisconnect(c)
}

func (g *Gateway) handle(w wire, closeFn func(reason string), msg messages.ClientMessage) {
	c := g.connect(w, closeFn)
	if c == nil {
		g.log.Debugf("Message from disconnected client %s dropped", w.Id())
		return
	}
	if err := validate(msg); err != nil {
		_ = c.Send(messages.NewError(netconfig.ErrCodeInvalidMessage, err.Error()))
		return
	}
	if _, ok := msg.(messages.JoinRoom); ok {
		c.joined.Store(true)
	}
	g.disp.Dispatch(c, msg)
}

// Len returns the number of open client connections.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Close drops every connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := g.conns
	g.conns = make(map[string]*Conn)
	g.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func validate(msg messages.ClientMessage) error {
	switch m := msg.(type) {
	case messages.JoinRoom:
		if strings.TrimSpace(m.GameID) == "" || strings.TrimSpace(m.PlayerID) == "" {
			return errors.New("gameId and playerId are required")
		}
		if len(m.GameID) > maxIDLength || len(m.PlayerID) > maxIDLength {
			return errors.New("gameId or playerId too long")
		}
	case messages.PaddleMove:
		if !gamemath.IsFinite(m.X) || !gamemath.IsFinite(m.Y) {
			return errors.New("paddle position must be finite")
		}
	}
	return nil
}
