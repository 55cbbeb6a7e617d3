// Package rooms tracks match rooms, who sits in them, and which connection
// belongs to whom.
package rooms

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrGameInProgress = errors.New("game already in progress")
	ErrAlreadyJoined  = errors.New("connection already joined another room")
	ErrNotInRoom      = errors.New("player not in room")
)

type membership struct {
	gameID   string
	playerID string
}

// JoinResult describes a successful join.
type JoinResult struct {
	Room        *Room
	Number      netconfig.PlayerNumber
	Reconnected bool
	Previous    Conn // Connection replaced by a reconnect, if any
}

// Registry holds every live room and the connection index. It is safe for
// concurrent use. Join reads Room.State, so callers that also mutate room
// lifecycle must serialise the two.
type Registry struct {
	clock clock.Clock
	log   slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[Conn]membership
}

func NewRegistry(clk clock.Clock, log slog.Logger) *Registry {
	return &Registry{
		clock: clk,
		log:   log,
		rooms: make(map[string]*Room),
		conns: make(map[Conn]membership),
	}
}

func (r *Registry) getOrCreateLocked(gameID string) *Room {
	room, ok := r.rooms[gameID]
	if !ok {
		room = newRoom(gameID, r.clock.Now())
		r.rooms[gameID] = room
		r.log.Debugf("Created room %s", gameID)
	}
	return room
}

func (r *Registry) Room(gameID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[gameID]
	return room, ok
}

// Join seats playerID in gameID. A player already seated is treated as a
// reconnect: the connection is replaced and the seat kept.
func (r *Registry) Join(gameID, playerID string, c Conn) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.conns[c]; ok && (m.gameID != gameID || m.playerID != playerID) {
		return JoinResult{}, ErrAlreadyJoined
	}

	room := r.getOrCreateLocked(gameID)
	if p := room.findLocked(playerID); p != nil {
		prev := p.Conn
		if prev != nil && prev != c {
			delete(r.conns, prev)
		}
		p.Conn = c
		r.conns[c] = membership{gameID: gameID, playerID: playerID}
		r.log.Infof("Player %s reconnected to room %s as player %d", playerID, gameID, p.Number)
		return JoinResult{Room: room, Number: p.Number, Reconnected: true, Previous: prev}, nil
	}

	if len(room.players) >= 2 {
		return JoinResult{}, ErrRoomFull
	}
	if room.State != netconfig.MatchStateWaiting {
		return JoinResult{}, ErrGameInProgress
	}

	p := &Player{ID: playerID, Conn: c, Number: room.freeNumberLocked()}
	room.players = append(room.players, p)
	r.conns[c] = membership{gameID: gameID, playerID: playerID}
	r.log.Infof("Player %s joined room %s as player %d", playerID, gameID, p.Number)

	return JoinResult{Room: room, Number: p.Number}, nil
}

// Lookup resolves a connection to its room and player.
func (r *Registry) Lookup(c Conn) (gameID, playerID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.conns[c]
	return m.gameID, m.playerID, ok
}

// Player returns a copy of a seat.
func (r *Registry) Player(gameID, playerID string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[gameID]
	if !ok {
		return Player{}, false
	}
	p := room.findLocked(playerID)
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies of a room's seats in join order.
func (r *Registry) Players(gameID string) []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[gameID]
	if !ok {
		return nil
	}
	out := make([]Player, 0, len(room.players))
	for _, p := range room.players {
		out = append(out, *p)
	}
	return out
}

// Broadcast sends msg to every player in the room except the excluded IDs.
// A failing recipient does not affect the others.
func (r *Registry) Broadcast(gameID string, msg messages.ServerMessage, exclude ...string) {
	for _, p := range r.Players(gameID) {
		if slices.Contains(exclude, p.ID) {
			continue
		}
		if err := r.send(p.Conn, msg); err != nil {
			r.log.Warnf("Broadcast %s to %s in room %s failed: %v", msg.Type(), p.ID, gameID, err)
		}
	}
}

// SendToPlayer sends msg to one player.
func (r *Registry) SendToPlayer(gameID, playerID string, msg messages.ServerMessage) error {
	p, ok := r.Player(gameID, playerID)
	if !ok {
		return fmt.Errorf("send %s to %s/%s: %w", msg.Type(), gameID, playerID, ErrNotInRoom)
	}
	if err := r.send(p.Conn, msg); err != nil {
		return fmt.Errorf("send %s to %s/%s: %w", msg.Type(), gameID, playerID, err)
	}
	return nil
}

func (r *Registry) send(c Conn, msg messages.ServerMessage) (err error) {
	if c == nil || !c.Open() {
		return errors.New("connection closed")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("send panicked: %v", rec)
		}
	}()
	return c.Send(msg)
}

// LeaveRoom removes a player. The room is destroyed, and all its tasks and
// its engine stopped, once the last player leaves. It reports whether the
// room was destroyed.
func (r *Registry) LeaveRoom(gameID, playerID string) bool {
	r.mu.Lock()
	room, ok := r.rooms[gameID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	for i, p := range room.players {
		if p.ID != playerID {
			continue
		}
		if m, ok := r.conns[p.Conn]; ok && m.gameID == gameID && m.playerID == playerID {
			delete(r.conns, p.Conn)
		}
		room.players = append(room.players[:i], room.players[i+1:]...)
		break
	}
	empty := len(room.players) == 0
	if empty {
		delete(r.rooms, gameID)
	}
	r.mu.Unlock()

	if empty {
		r.teardown(room)
		r.log.Debugf("Room %s destroyed (empty)", gameID)
	}
	return empty
}

// Forget drops a connection from the index without touching any seat. Used
// when a replaced connection finally closes.
func (r *Registry) Forget(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

// CleanupRoom forcibly removes a room, its memberships, tasks and engine.
func (r *Registry) CleanupRoom(gameID string) {
	r.mu.Lock()
	room, ok := r.rooms[gameID]
	if ok {
		for _, p := range room.players {
			if m, ok := r.conns[p.Conn]; ok && m.gameID == gameID {
				delete(r.conns, p.Conn)
			}
		}
		room.players = nil
		delete(r.rooms, gameID)
	}
	r.mu.Unlock()

	if ok {
		r.teardown(room)
		r.log.Infof("Room %s cleaned up", gameID)
	}
}

func (r *Registry) teardown(room *Room) {
	room.CancelAllTasks()
	if room.Engine != nil {
		room.Engine.Stop()
	}
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// All returns every live room.
func (r *Registry) All() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}
