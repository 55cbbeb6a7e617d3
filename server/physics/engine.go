// Package physics simulates the puck and both paddles for one match.
package physics

import (
	"math"
	"sync"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/server/loop"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/netcomponents"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/automoto/airhockey-mp/tags"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
	"github.com/yohamta/donburi"
)

// refStep is the step length velocities are expressed against.
const refStep = time.Second / 60

const (
	serveOffset = 50.0
	maxSubSteps = 64
)

type runState int

const (
	stateStopped runState = iota
	stateRunning
	statePaused
)

// Engine owns the bodies of one match. All exported methods are safe for
// concurrent use. The goal callback runs on the tick goroutine without the
// engine lock held, so it may call back into the engine.
type Engine struct {
	cfg   config.Config
	clock clock.Clock
	log   slog.Logger

	mu          sync.Mutex
	world       donburi.World
	table       *table
	puck        *PuckPhysics
	paddles     map[donburi.Entity]*PaddlePhysics
	seats       [3]*PaddlePhysics // indexed by PlayerNumber
	scoreEntity donburi.Entity

	state    runState
	loop     *loop.GameLoop
	lastTick time.Time

	// goalLatched freezes the simulation between a goal and the serve.
	goalLatched  bool
	pendingServe netconfig.PlayerNumber
	goalTimer    *clock.Timer
	goalSeq      uint64

	onGoal func(scorer netconfig.PlayerNumber)
}

// New builds a stopped engine with the puck centred and both paddles at
// their start positions.
func New(cfg *config.Config, clk clock.Clock, log slog.Logger) *Engine {
	e := &Engine{
		cfg:     *cfg,
		clock:   clk,
		log:     log,
		world:   donburi.NewWorld(),
		paddles: make(map[donburi.Entity]*PaddlePhysics, 2),
	}
	e.table = newTable(cfg.Table, cfg.Puck.Radius)

	e.puck = &PuckPhysics{Entity: e.world.Create(tags.Puck, netcomponents.Puck)}
	e.puck.Object = e.table.newCircleObject(e.puck.Pos, cfg.Puck.Radius, tags.ResolvPuck)
	e.puck.Object.Data = e.puck

	for _, n := range []netconfig.PlayerNumber{netconfig.Player1, netconfig.Player2} {
		pp := &PaddlePhysics{
			Entity: e.world.Create(tags.Paddle, netcomponents.Paddle),
			Number: n,
			Pos:    startPosition(cfg.Table, n),
		}
		pp.Object = e.table.newCircleObject(pp.Pos, cfg.Paddle.Radius, tags.ResolvPaddle)
		pp.Object.Data = pp
		e.paddles[pp.Entity] = pp
		e.seats[n] = pp
	}

	e.scoreEntity = e.world.Create(netcomponents.Score)
	e.syncComponents()
	return e
}

// OnGoal registers the function called after each goal.
func (e *Engine) OnGoal(fn func(scorer netconfig.PlayerNumber)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onGoal = fn
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateStopped {
		return
	}
	e.state = stateRunning
	e.startLoopLocked()
	e.log.Debugf("Physics engine started")
}

// Stop halts ticking and cancels a pending serve. It does not wait for an
// in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateStopped {
		return
	}
	e.state = stateStopped
	e.stopLoopLocked()
	e.cancelServeLocked()
	e.log.Debugf("Physics engine stopped")
}

// Pause halts ticking and returns the frozen state. A pending serve is
// cancelled and re-armed on Resume.
func (e *Engine) Pause() netcomponents.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateRunning {
		e.state = statePaused
		e.stopLoopLocked()
		e.cancelServeLocked()
	}
	return e.snapshotLocked()
}

// Resume restarts ticking. The tick clock restarts from now so the first
// step does not try to catch up on the paused time.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != statePaused {
		return
	}
	e.state = stateRunning
	e.startLoopLocked()
	if e.goalLatched {
		e.scheduleServeLocked(e.pendingServe)
	}
}

// SetPaddleTarget stores where player p wants its paddle, clamped to that
// player's half. Non-finite coordinates are ignored.
func (e *Engine) SetPaddleTarget(p netconfig.PlayerNumber, x, y float64) {
	if !p.Valid() || !gamemath.IsFinite(x) || !gamemath.IsFinite(y) {
		e.log.Debugf("Ignoring paddle target for player %d: (%v, %v)", p, x, y)
		return
	}
	x, y = ClampPaddle(e.cfg.Table, e.cfg.Paddle.Radius, p, x, y)

	e.mu.Lock()
	defer e.mu.Unlock()
	pp := e.seats[p]
	pp.Target = gamemath.Vec{X: x, Y: y}
	pp.HasTarget = true
}

// State returns a copy of the current simulation state.
func (e *Engine) State() netcomponents.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// ResetPuck puts the puck back near the centre at rest, on serveToward's
// side of the line when given, and clears a latched goal.
func (e *Engine) ResetPuck(serveToward netconfig.PlayerNumber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelServeLocked()
	e.resetPuckLocked(serveToward)
}

// ResetGame zeroes the score and returns every body to its start position.
func (e *Engine) ResetGame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelServeLocked()

	netcomponents.Score.SetValue(e.world.Entry(e.scoreEntity), netcomponents.ScoreData{})
	for _, pp := range e.seats[1:] {
		pp.Pos = startPosition(e.cfg.Table, pp.Number)
		pp.Vel = gamemath.Vec{}
		pp.HasTarget = false
		pp.Touching = false
		e.table.place(pp.Object, pp.Pos, e.cfg.Paddle.Radius)
	}
	e.resetPuckLocked(netconfig.NoPlayer)
}

func (e *Engine) startLoopLocked() {
	e.lastTick = e.clock.Now()
	e.loop = loop.New("physics", e.clock, e.cfg.Game.TickInterval(), e.tick, e.log).Start()
}

func (e *Engine) stopLoopLocked() {
	if e.loop != nil {
		e.loop.Stop()
		e.loop = nil
	}
}

func (e *Engine) tick() {
	scorer, cb := e.advance()
	if scorer.Valid() && cb != nil {
		cb(scorer)
	}
}

// advance runs one tick under the lock and returns the scorer, if any, with
// the callback to notify once the lock is released.
func (e *Engine) advance() (netconfig.PlayerNumber, func(netconfig.PlayerNumber)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRunning {
		return netconfig.NoPlayer, nil
	}

	now := e.clock.Now()
	elapsed := now.Sub(e.lastTick)
	e.lastTick = now
	if elapsed <= 0 || e.goalLatched {
		return netconfig.NoPlayer, nil
	}
	dt := min(elapsed, e.cfg.Game.MaxStep)

	e.updatePaddles(dt)
	e.capPuckSpeed()
	e.step(dt)
	e.capPuckSpeed()

	scorer := netconfig.NoPlayer
	if reset := e.recover(); !reset {
		scorer = CheckGoal(e.cfg.Table, e.cfg.Puck.Radius, e.puck.Pos.X, e.puck.Pos.Y)
		if scorer.Valid() {
			e.latchGoalLocked(scorer)
		}
	}
	e.syncComponents()
	return scorer, e.onGoal
}

// updatePaddles moves each paddle to its pending target and derives the
// reported velocity from the move.
func (e *Engine) updatePaddles(dt time.Duration) {
	steps := float64(dt) / float64(refStep)
	maxV := e.cfg.Paddle.MaxVelocity

	for _, pp := range e.seats[1:] {
		if !pp.HasTarget {
			pp.Vel = gamemath.Vec{}
			continue
		}
		prev := pp.Pos
		pp.Pos = pp.Target
		pp.HasTarget = false

		pp.Vel = pp.Pos.Sub(prev).Scale(1 / steps)
		if pp.Vel.IsFinite() {
			pp.Vel = pp.Vel.CapLen(maxV)
		}
		e.table.place(pp.Object, pp.Pos, e.cfg.Paddle.Radius)
	}
}

func (e *Engine) capPuckSpeed() {
	if e.puck.Vel.IsFinite() {
		e.puck.Vel = e.puck.Vel.CapLen(e.cfg.Puck.MaxSpeed)
	}
}

// step integrates the puck over dt, splitting the move so it never travels
// more than half its radius between contact checks.
func (e *Engine) step(dt time.Duration) {
	puck := e.puck
	steps := float64(dt) / float64(refStep)

	n := 1
	if travel := puck.Vel.Len() * steps; gamemath.IsFinite(travel) {
		n = int(math.Ceil(travel / (e.cfg.Puck.Radius / 2)))
		n = max(1, min(n, maxSubSteps))
	}

	sub := steps / float64(n)
	for i := 0; i < n; i++ {
		puck.Pos = puck.Pos.Add(puck.Vel.Scale(sub))
		e.resolveContacts()
	}
	puck.Vel = puck.Vel.Scale(math.Pow(1-e.cfg.Puck.FrictionAir, steps))
}

func (e *Engine) latchGoalLocked(scorer netconfig.PlayerNumber) {
	e.goalLatched = true
	e.puck.Vel = gamemath.Vec{}

	score := netcomponents.Score.Get(e.world.Entry(e.scoreEntity))
	if scorer == netconfig.Player1 {
		score.Player1++
	} else {
		score.Player2++
	}
	e.log.Infof("Goal for player %d (%d-%d)", scorer, score.Player1, score.Player2)

	e.scheduleServeLocked(scorer.Opponent())
}

// scheduleServeLocked arms the post-goal reset. A timer that fires after
// being superseded or cancelled does nothing.
func (e *Engine) scheduleServeLocked(loser netconfig.PlayerNumber) {
	e.cancelServeLocked()
	e.pendingServe = loser
	seq := e.goalSeq

	e.goalTimer = e.clock.AfterFunc(e.cfg.Game.GoalPause, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if seq != e.goalSeq || !e.goalLatched || e.state != stateRunning {
			return
		}
		e.goalTimer = nil
		e.resetPuckLocked(loser)
	})
}

func (e *Engine) cancelServeLocked() {
	e.goalSeq++
	if e.goalTimer != nil {
		e.goalTimer.Stop()
		e.goalTimer = nil
	}
}

func (e *Engine) resetPuckLocked(serveToward netconfig.PlayerNumber) {
	spot := gamemath.Vec{}
	switch serveToward {
	case netconfig.Player1:
		spot.Y = serveOffset
	case netconfig.Player2:
		spot.Y = -serveOffset
	}

	// Keep the puck clear of a paddle parked on the spot.
	safe := e.cfg.Puck.Radius + e.cfg.Paddle.Radius + 5
	d1 := e.seats[netconfig.Player1].Pos.DistTo(spot)
	d2 := e.seats[netconfig.Player2].Pos.DistTo(spot)
	if d1 < safe || d2 < safe {
		if d1 < d2 {
			spot.Y -= serveOffset
		} else {
			spot.Y += serveOffset
		}
	}

	e.puck.Pos = spot
	e.puck.Vel = gamemath.Vec{}
	e.goalLatched = false
	e.pendingServe = netconfig.NoPlayer
	for _, pp := range e.seats[1:] {
		pp.Touching = false
	}
	e.table.place(e.puck.Object, e.puck.Pos, e.cfg.Puck.Radius)
	e.syncComponents()
}

// syncComponents copies simulation state into the donburi components the
// snapshots are read from.
func (e *Engine) syncComponents() {
	netcomponents.Puck.SetValue(e.world.Entry(e.puck.Entity), netcomponents.PuckData{
		X:  e.puck.Pos.X,
		Y:  e.puck.Pos.Y,
		VX: e.puck.Vel.X,
		VY: e.puck.Vel.Y,
	})
	tags.Paddle.Each(e.world, func(entry *donburi.Entry) {
		if pp, ok := e.paddles[entry.Entity()]; ok {
			netcomponents.Paddle.SetValue(entry, netcomponents.PaddleData{X: pp.Pos.X, Y: pp.Pos.Y})
		}
	})
}

func (e *Engine) snapshotLocked() netcomponents.Snapshot {
	return netcomponents.Snapshot{
		Puck:      *netcomponents.Puck.Get(e.world.Entry(e.puck.Entity)),
		Paddle1:   *netcomponents.Paddle.Get(e.world.Entry(e.seats[netconfig.Player1].Entity)),
		Paddle2:   *netcomponents.Paddle.Get(e.world.Entry(e.seats[netconfig.Player2].Entity)),
		Score:     *netcomponents.Score.Get(e.world.Entry(e.scoreEntity)),
		Timestamp: e.clock.Now().UnixMilli(),
	}
}
