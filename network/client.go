// Package network is a headless client for the match server, used by bots
// and smoke tests.
package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/coder/websocket"
	"github.com/decred/slog"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateEnded
	StateError
)

const eventBuffer = 32

// Client manages one websocket connection to the server.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	log slog.Logger

	mu           sync.RWMutex
	state        ClientState
	lastError    error
	playerNumber netconfig.PlayerNumber
	conn         *websocket.Conn

	stateCh chan messages.StateUpdate // size-1 buffered; latest wins
	events  chan messages.ServerMessage
}

func NewClient(log slog.Logger) *Client {
	return &Client{
		log:     log,
		state:   StateDisconnected,
		stateCh: make(chan messages.StateUpdate, 1),
		events:  make(chan messages.ServerMessage, eventBuffer),
	}
}

// Connect dials the server in a background goroutine and joins gameID as
// playerID once connected.
func (c *Client) Connect(address, gameID, playerID string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		c.log.Infof("Connected to %s", address)
		c.setState(StateConnected)
		if err := c.SendMessage(messages.JoinRoom{GameID: gameID, PlayerID: playerID}); err != nil {
			c.setError(fmt.Errorf("send join: %w", err))
		}
	})

	router.On(func(_ *router.NetworkClient, msg messages.RoomJoined) { c.onRoomJoined(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.StateUpdate) { c.onStateUpdate(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.GameOver) { c.onGameOver(msg) })

	onEvent[messages.OpponentJoined](c)
	onEvent[messages.OpponentDisconnected](c)
	onEvent[messages.Countdown](c)
	onEvent[messages.Goal](c)
	onEvent[messages.GamePaused](c)
	onEvent[messages.ResumeCountdown](c)
	onEvent[messages.GameResumed](c)
	onEvent[messages.OpponentQuit](c)
	onEvent[messages.OpponentExited](c)
	onEvent[messages.Error](c)
	onEvent[messages.Pong](c)

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		c.log.Infof("Disconnected: %v", err)
		c.mu.Lock()
		if c.state != StateError && c.state != StateEnded {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		c.log.Warnf("Client error: %v", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

func onEvent[T messages.ServerMessage](c *Client) {
	router.On(func(_ *router.NetworkClient, msg T) { c.pushEvent(msg) })
}

func (c *Client) onRoomJoined(msg messages.RoomJoined) {
	c.log.Infof("Joined room %s as player %d", msg.GameID, msg.PlayerNumber)
	c.mu.Lock()
	c.playerNumber = msg.PlayerNumber
	c.state = StateJoined
	c.mu.Unlock()
	c.pushEvent(msg)
}

func (c *Client) onStateUpdate(msg messages.StateUpdate) {
	select { // drain stale, push latest
	case <-c.stateCh:
	default:
	}
	c.stateCh <- msg
}

func (c *Client) onGameOver(msg messages.GameOver) {
	c.setState(StateEnded)
	c.pushEvent(msg)
}

// pushEvent queues msg for Events, dropping it when nobody keeps up.
func (c *Client) pushEvent(msg messages.ServerMessage) {
	select {
	case c.events <- msg:
	default:
		c.log.Debugf("Event %s dropped", msg.Type())
	}
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	router.ResetRouter()
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) PlayerNumber() netconfig.PlayerNumber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerNumber
}

// LatestState returns the most recent state update, or nil. Non-blocking.
func (c *Client) LatestState() *messages.StateUpdate {
	select {
	case s := <-c.stateCh:
		return &s
	default:
		return nil
	}
}

// Events delivers every other server message in arrival order.
func (c *Client) Events() <-chan messages.ServerMessage {
	return c.events
}

// DrainEvents returns all pending events, non-blocking.
func (c *Client) DrainEvents() []messages.ServerMessage {
	return drainChan(c.events)
}

func (c *Client) SendMessage(msg messages.ClientMessage) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
