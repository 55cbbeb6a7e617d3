package physics

import (
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = time.Second / 60

// newRunningEngine returns an engine marked running without its loop, so
// tests drive ticks by hand through advance.
func newRunningEngine(t *testing.T) (*Engine, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	e := New(config.Default(), mock, slog.Disabled)
	e.state = stateRunning
	e.lastTick = mock.Now()
	return e, mock
}

func stepFrames(e *Engine, mock *clock.Mock, n int) {
	for i := 0; i < n; i++ {
		mock.Add(frame)
		e.advance()
	}
}

func setPuck(e *Engine, pos, vel gamemath.Vec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.puck.Pos = pos
	e.puck.Vel = vel
	e.table.place(e.puck.Object, pos, e.cfg.Puck.Radius)
}

func TestNewEngineStartPositions(t *testing.T) {
	e := New(config.Default(), clock.NewMock(), slog.Disabled)
	s := e.State()

	assert.Equal(t, 0.0, s.Puck.X)
	assert.Equal(t, 0.0, s.Puck.Y)
	assert.Equal(t, 150.0, s.Paddle1.Y)
	assert.Equal(t, -150.0, s.Paddle2.Y)
	assert.Zero(t, s.Score.Player1)
	assert.Zero(t, s.Score.Player2)
}

func TestPuckSpeedNeverExceedsMax(t *testing.T) {
	e, mock := newRunningEngine(t)
	maxSpeed := e.cfg.Puck.MaxSpeed
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		pos := gamemath.Vec{X: (rng.Float64() - 0.5) * 360, Y: (rng.Float64() - 0.5) * 560}
		vel := gamemath.Vec{X: (rng.Float64() - 0.5) * 2000, Y: (rng.Float64() - 0.5) * 2000}
		setPuck(e, pos, vel)
		e.SetPaddleTarget(netconfig.Player1, (rng.Float64()-0.5)*400, rng.Float64()*300)
		e.SetPaddleTarget(netconfig.Player2, (rng.Float64()-0.5)*400, -rng.Float64()*300)

		mock.Add(time.Duration(rng.Intn(80)+1) * time.Millisecond)
		e.advance()

		s := e.State()
		speed := math.Hypot(s.Puck.VX, s.Puck.VY)
		require.LessOrEqual(t, speed, maxSpeed+1e-9, "iteration %d", i)

		if e.goalLatched {
			e.ResetPuck(netconfig.NoPlayer)
		}
	}
}

func TestPuckBouncesOffSideWall(t *testing.T) {
	e, mock := newRunningEngine(t)
	hw := e.cfg.Table.HalfWidth()
	setPuck(e, gamemath.Vec{X: hw - 20, Y: 0}, gamemath.Vec{X: 10})

	stepFrames(e, mock, 10)

	s := e.State()
	assert.Less(t, s.Puck.VX, 0.0)
	assert.LessOrEqual(t, s.Puck.X, hw-e.cfg.Puck.Radius+1e-6)
}

func TestGoalLatchesAndServesToLoser(t *testing.T) {
	e, mock := newRunningEngine(t)
	hh := e.cfg.Table.HalfHeight()

	var goals atomic.Int32
	var lastScorer atomic.Int32
	e.OnGoal(func(s netconfig.PlayerNumber) {
		goals.Add(1)
		lastScorer.Store(int32(s))
	})

	setPuck(e, gamemath.Vec{X: 0, Y: -(hh - 5)}, gamemath.Vec{Y: -20})
	mock.Add(frame)
	e.tick()

	require.Equal(t, int32(1), goals.Load())
	assert.Equal(t, int32(netconfig.Player1), lastScorer.Load())

	s := e.State()
	assert.Equal(t, 1, s.Score.Player1)
	assert.Zero(t, s.Puck.VX)
	assert.Zero(t, s.Puck.VY)

	// Latched: further ticks neither move the puck nor score again.
	frozen := s.Puck
	stepFrames(e, mock, 5)
	assert.Equal(t, frozen, e.State().Puck)
	assert.Equal(t, int32(1), goals.Load())

	mock.Add(e.cfg.Game.GoalPause)
	require.Eventually(t, func() bool {
		p := e.State().Puck
		return p.X == 0 && p.Y == -serveOffset
	}, time.Second, time.Millisecond)
	assert.False(t, e.goalLatched)
}

func TestPauseCancelsServeAndResumeRearmsIt(t *testing.T) {
	e, mock := newRunningEngine(t)
	hh := e.cfg.Table.HalfHeight()
	setPuck(e, gamemath.Vec{X: 0, Y: hh - 5}, gamemath.Vec{Y: 20})
	mock.Add(frame)
	e.advance()
	require.True(t, e.goalLatched)

	paused := e.Pause()
	assert.Equal(t, 1, paused.Score.Player2)

	mock.Add(2 * e.cfg.Game.GoalPause)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, paused.Puck, e.State().Puck, "serve must not fire while paused")

	e.Resume()
	defer e.Stop()
	mock.Add(e.cfg.Game.GoalPause)
	require.Eventually(t, func() bool {
		return e.State().Puck.Y == serveOffset
	}, time.Second, time.Millisecond)
}

func TestPauseFreezesSimulation(t *testing.T) {
	e, mock := newRunningEngine(t)
	setPuck(e, gamemath.Vec{}, gamemath.Vec{X: 5, Y: 5})

	snap := e.Pause()
	mock.Add(frame)
	e.advance()
	assert.Equal(t, snap.Puck, e.State().Puck)
}

func TestResumeDoesNotCatchUp(t *testing.T) {
	e, mock := newRunningEngine(t)
	setPuck(e, gamemath.Vec{}, gamemath.Vec{X: 1})
	e.Pause()

	mock.Add(time.Hour)
	e.Resume()
	defer e.Stop()

	e.mu.Lock()
	last := e.lastTick
	e.mu.Unlock()
	assert.Equal(t, mock.Now(), last)
}

func TestRecoveryResetsNonFinitePuck(t *testing.T) {
	e, mock := newRunningEngine(t)
	setPuck(e, gamemath.Vec{X: math.NaN(), Y: 3}, gamemath.Vec{X: math.Inf(1)})

	mock.Add(frame)
	scorer, _ := e.advance()

	assert.Equal(t, netconfig.NoPlayer, scorer)
	s := e.State()
	assert.Equal(t, 0.0, s.Puck.X)
	assert.Equal(t, 0.0, s.Puck.Y)
	assert.Equal(t, 0.0, s.Puck.VX)
	assert.Equal(t, 0.0, s.Puck.VY)
}

func TestRecoveryPullsBackEscapedPuck(t *testing.T) {
	e, _ := newRunningEngine(t)
	hw := e.cfg.Table.HalfWidth()
	e.puck.Pos = gamemath.Vec{X: hw + 10*e.cfg.Puck.Radius, Y: 10}
	e.puck.Vel = gamemath.Vec{X: 8, Y: 1}

	assert.False(t, e.recover())
	assert.Equal(t, hw-e.cfg.Puck.Radius, e.puck.Pos.X)
	assert.Equal(t, -4.0, e.puck.Vel.X)
	assert.Equal(t, 1.0, e.puck.Vel.Y)
}

func TestRecoveryLeavesGoalMouthAlone(t *testing.T) {
	e, _ := newRunningEngine(t)
	hh := e.cfg.Table.HalfHeight()
	e.puck.Pos = gamemath.Vec{X: 0, Y: hh + 10*e.cfg.Puck.Radius}
	e.puck.Vel = gamemath.Vec{Y: 5}

	e.recover()
	assert.Equal(t, hh+10*e.cfg.Puck.Radius, e.puck.Pos.Y)
	assert.Equal(t, 5.0, e.puck.Vel.Y)
}

func TestPaddleHitTransfersVelocity(t *testing.T) {
	e, mock := newRunningEngine(t)
	setPuck(e, gamemath.Vec{X: 0, Y: 60}, gamemath.Vec{})

	// Player 1 sweeps up from y=150 into the resting puck.
	e.SetPaddleTarget(netconfig.Player1, 0, 110)
	stepFrames(e, mock, 1)
	e.SetPaddleTarget(netconfig.Player1, 0, 90)
	stepFrames(e, mock, 1)

	s := e.State()
	assert.Less(t, s.Puck.VY, 0.0, "puck should be driven toward the top goal")
	dist := math.Hypot(s.Puck.X-s.Paddle1.X, s.Puck.Y-s.Paddle1.Y)
	assert.GreaterOrEqual(t, dist, e.cfg.Puck.Radius+e.cfg.Paddle.Radius-1e-6)
}

func TestSetPaddleTargetClampsAndIgnoresNaN(t *testing.T) {
	e, mock := newRunningEngine(t)

	e.SetPaddleTarget(netconfig.Player2, math.NaN(), 0)
	e.SetPaddleTarget(netconfig.NoPlayer, 0, 0)
	stepFrames(e, mock, 1)
	assert.Equal(t, -150.0, e.State().Paddle2.Y)

	e.SetPaddleTarget(netconfig.Player2, 0, 10000)
	stepFrames(e, mock, 1)
	assert.Equal(t, -e.cfg.Paddle.Radius, e.State().Paddle2.Y)
}

func TestResetGame(t *testing.T) {
	e, mock := newRunningEngine(t)
	e.SetPaddleTarget(netconfig.Player1, 100, 100)
	stepFrames(e, mock, 1)
	e.latchGoalLocked(netconfig.Player1)

	e.ResetGame()

	s := e.State()
	assert.Zero(t, s.Score.Player1)
	assert.Equal(t, 0.0, s.Paddle1.X)
	assert.Equal(t, 150.0, s.Paddle1.Y)
	assert.Equal(t, 0.0, s.Puck.Y)
	assert.False(t, e.goalLatched)
}

func TestStartStopIdempotent(t *testing.T) {
	e := New(config.Default(), clock.NewMock(), slog.Disabled)
	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
	assert.Equal(t, stateStopped, e.state)
}

func TestPaddleVelocityCappedByMagnitude(t *testing.T) {
	e, mock := newRunningEngine(t)

	e.SetPaddleTarget(netconfig.Player1, 60, 210)
	stepFrames(e, mock, 1)

	v := e.seats[netconfig.Player1].Vel
	assert.InDelta(t, e.cfg.Paddle.MaxVelocity, v.Len(), 1e-9)
	assert.InDelta(t, v.X, v.Y, 1e-9)
}
