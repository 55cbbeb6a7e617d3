// Package match drives each room through its lifecycle: countdown, play,
// pause and resume, disconnects, and termination.
package match

import (
	"sort"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/server/loop"
	"github.com/automoto/airhockey-mp/server/rooms"
	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
)

// Task keys stored on rooms.
const (
	keyCountdown = "countdown"
	keyResume    = "resume"
	keyBroadcast = "broadcast"
	keyCleanup   = "cleanup"
)

func graceKey(playerID string) string {
	return "grace:" + playerID
}

// ResultSubmitter hands a finished match to result delivery without
// blocking.
type ResultSubmitter interface {
	SubmitAsync(gameID string, score1, score2 int)
}

// EngineFactory builds a fresh simulation for a match.
type EngineFactory func() rooms.Engine

type seatKey struct {
	gameID   string
	playerID string
}

// Orchestrator owns every room's lifecycle state. All handlers and timer
// callbacks run under one lock, so a room's transitions are serialised and
// each one re-checks the room's current state before acting.
type Orchestrator struct {
	cfg       *config.Config
	rooms     *rooms.Registry
	results   ResultSubmitter
	newEngine EngineFactory
	clock     clock.Clock
	log       slog.Logger

	mu sync.Mutex

	// Idempotency guards: a second countdown start or a second termination
	// for the same room is a no-op.
	starting map[string]bool
	ending   map[string]bool

	lastPause  map[seatKey]time.Time
	graceUntil map[seatKey]time.Time
}

func New(cfg *config.Config, reg *rooms.Registry, results ResultSubmitter, newEngine EngineFactory, clk clock.Clock, log slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		rooms:      reg,
		results:    results,
		newEngine:  newEngine,
		clock:      clk,
		log:        log,
		starting:   make(map[string]bool),
		ending:     make(map[string]bool),
		lastPause:  make(map[seatKey]time.Time),
		graceUntil: make(map[seatKey]time.Time),
	}
}

// Dispatch routes a decoded client message to its handler.
func (o *Orchestrator) Dispatch(c rooms.Conn, msg messages.ClientMessage) {
	switch m := msg.(type) {
	case messages.JoinRoom:
		o.HandleJoin(c, m.GameID, m.PlayerID)
	case messages.PaddleMove:
		o.HandlePaddleMove(c, m.X, m.Y)
	case messages.PlayerReady:
		o.log.Debugf("Connection %s ready", c.ID())
	case messages.Ping:
		o.reply(c, messages.Pong{})
	case messages.PauseRequest:
		o.HandlePause(c)
	case messages.ResumeRequest:
		o.HandleResume(c)
	case messages.QuitGame:
		o.HandleQuit(c)
	case messages.PlayerExit:
		o.HandleExit(c)
	default:
		o.reply(c, messages.NewError(netconfig.ErrCodeInvalidMessage, "Unknown message type"))
	}
}

func (o *Orchestrator) reply(c rooms.Conn, msg messages.ServerMessage) {
	if err := c.Send(msg); err != nil {
		o.log.Debugf("Reply %s to %s failed: %v", msg.Type(), c.ID(), err)
	}
}

// live reports whether room is still the registered room for its ID.
func (o *Orchestrator) live(room *rooms.Room) bool {
	cur, ok := o.rooms.Room(room.GameID)
	return ok && cur == room
}

// seat resolves a connection to its room and player, rejecting connections
// that were replaced by a reconnect.
func (o *Orchestrator) seat(c rooms.Conn) (*rooms.Room, rooms.Player, bool) {
	gameID, playerID, ok := o.rooms.Lookup(c)
	if !ok {
		return nil, rooms.Player{}, false
	}
	room, ok := o.rooms.Room(gameID)
	if !ok {
		return nil, rooms.Player{}, false
	}
	p, ok := o.rooms.Player(gameID, playerID)
	if !ok || p.Conn != c {
		return nil, rooms.Player{}, false
	}
	return room, p, true
}

// after runs fn under the orchestrator lock once d has elapsed, unless the
// room was destroyed or the task under key was cancelled or replaced in the
// meantime. Callers must hold o.mu.
func (o *Orchestrator) after(room *rooms.Room, key string, d time.Duration, fn func()) {
	var t *clock.Timer
	t = o.clock.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.live(room) || !room.OwnsTask(key, t) {
			return
		}
		room.ReleaseTask(key, t)
		fn()
	})
	room.SetTask(key, t)
}

// startBroadcast begins the periodic state-update loop for a playing room.
func (o *Orchestrator) startBroadcast(room *rooms.Room) {
	var l *loop.GameLoop
	l = loop.New("broadcast "+room.GameID, o.clock, o.cfg.Game.BroadcastInterval(), func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.live(room) || !room.OwnsTask(keyBroadcast, l) || room.Engine == nil {
			return
		}
		o.rooms.Broadcast(room.GameID, messages.StateUpdate{Snapshot: room.Engine.State()})
	}, o.log)
	room.SetTask(keyBroadcast, l)
	l.Start()
}

// forget drops per-room bookkeeping once a room is gone.
func (o *Orchestrator) forget(gameID string) {
	delete(o.starting, gameID)
	delete(o.ending, gameID)
	for k := range o.lastPause {
		if k.gameID == gameID {
			delete(o.lastPause, k)
		}
	}
	for k := range o.graceUntil {
		if k.gameID == gameID {
			delete(o.graceUntil, k)
		}
	}
}

// RoomSummary is an administrative view of one room.
type RoomSummary struct {
	GameID    string                   `json:"gameId"`
	State     string                   `json:"state"`
	Players   []string                 `json:"players"`
	Score     *netcomponents.ScoreData `json:"score,omitempty"`
	Tasks     []string                 `json:"tasks"`
	CreatedAt time.Time                `json:"createdAt"`
}

// Rooms lists every live room, oldest first.
func (o *Orchestrator) Rooms() []RoomSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	all := o.rooms.All()
	out := make([]RoomSummary, 0, len(all))
	for _, room := range all {
		s := RoomSummary{
			GameID:    room.GameID,
			State:     room.State.String(),
			Tasks:     room.TaskKeys(),
			CreatedAt: room.CreatedAt,
		}
		for _, p := range o.rooms.Players(room.GameID) {
			s.Players = append(s.Players, p.ID)
		}
		switch {
		case room.Engine != nil:
			score := room.Engine.State().Score
			s.Score = &score
		case room.Result != nil:
			score := room.Result.Score
			s.Score = &score
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown tears down every room.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, room := range o.rooms.All() {
		o.rooms.CleanupRoom(room.GameID)
		o.forget(room.GameID)
	}
}
