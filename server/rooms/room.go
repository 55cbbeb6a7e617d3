package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/shared/messages"
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
)

// Conn is one client connection as seen by the core. Implementations must
// be comparable (pointer types) because connections index membership.
type Conn interface {
	ID() string
	Send(msg messages.ServerMessage) error
	Open() bool
}

// Engine is the simulation a room owns while a match is in progress.
type Engine interface {
	Start()
	Stop()
	Pause() netcomponents.Snapshot
	Resume()
	SetPaddleTarget(p netconfig.PlayerNumber, x, y float64)
	State() netcomponents.Snapshot
	OnGoal(fn func(scorer netconfig.PlayerNumber))
}

// Task is a scheduled job that can be cancelled: a timer or a loop.
type Task interface {
	Stop() bool
}

// Player is a seat in a room.
type Player struct {
	ID     string
	Conn   Conn
	Number netconfig.PlayerNumber
}

// PauseState describes a paused or resuming match.
type PauseState struct {
	Reason               netconfig.PauseReason
	PausedBy             netconfig.PlayerNumber
	PausedAt             time.Time
	DisconnectedPlayerID string
	Saved                netcomponents.Snapshot
	GraceDeadline        time.Time // Zero unless a forfeit timer is armed
}

// Result is the outcome of an ended match.
type Result struct {
	Winner netconfig.PlayerNumber
	Score  netcomponents.ScoreData
}

// Room is one match's session container. Membership is guarded by the
// Registry; the lifecycle fields (State, Engine, Pause, Countdown,
// ResumeCountdown, Result) belong to the match orchestrator and are only
// touched under its lock.
type Room struct {
	GameID    string
	CreatedAt time.Time

	State           netconfig.MatchStateID
	Engine          Engine
	Pause           *PauseState
	Countdown       int
	ResumeCountdown int
	Result          *Result

	players []*Player // join order

	tasksMu sync.Mutex
	tasks   map[string]Task
}

func newRoom(gameID string, now time.Time) *Room {
	return &Room{
		GameID:    gameID,
		CreatedAt: now,
		State:     netconfig.MatchStateWaiting,
		tasks:     make(map[string]Task),
	}
}

func (r *Room) findLocked(playerID string) *Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) freeNumberLocked() netconfig.PlayerNumber {
	taken := make(map[netconfig.PlayerNumber]bool, len(r.players))
	for _, p := range r.players {
		taken[p.Number] = true
	}
	if !taken[netconfig.Player1] {
		return netconfig.Player1
	}
	return netconfig.Player2
}

// SetTask stores a task under key, stopping any task it replaces.
func (r *Room) SetTask(key string, t Task) {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	if old, ok := r.tasks[key]; ok && old != t {
		old.Stop()
	}
	r.tasks[key] = t
}

// CancelTask stops and forgets the task under key.
func (r *Room) CancelTask(key string) bool {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	t, ok := r.tasks[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.tasks, key)
	return true
}

// OwnsTask reports whether t is still the task stored under key. Fired
// callbacks use it to detect that they were superseded or cancelled.
func (r *Room) OwnsTask(key string, t Task) bool {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	cur, ok := r.tasks[key]
	return ok && cur == t
}

// ReleaseTask forgets t under key without stopping it, if it is still the
// current task. Used by one-shot timers once they have fired.
func (r *Room) ReleaseTask(key string, t Task) {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	if cur, ok := r.tasks[key]; ok && cur == t {
		delete(r.tasks, key)
	}
}

// CancelAllTasks stops every task the room holds.
func (r *Room) CancelAllTasks() {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	for key, t := range r.tasks {
		t.Stop()
		delete(r.tasks, key)
	}
}

// TaskKeys lists the pending tasks, sorted.
func (r *Room) TaskKeys() []string {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	keys := make([]string, 0, len(r.tasks))
	for key := range r.tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
