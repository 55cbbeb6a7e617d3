package physics

import (
	"math"

	"github.com/automoto/airhockey-mp/shared/gamemath"
)

// escapeDamping is the share of speed kept when an escaped puck is bounced
// back inside.
const escapeDamping = 0.5

// recover repairs an impossible puck state. The first layer resets a
// non-finite puck to the centre; the second pulls back a puck that got past
// the walls anywhere except through a goal mouth. It reports whether the
// hard reset happened, in which case goal checking is skipped for the tick.
func (e *Engine) recover() bool {
	puck := e.puck
	if !puck.Pos.IsFinite() || !puck.Vel.IsFinite() {
		e.log.Warnf("Puck state not finite (pos=%v vel=%v), resetting to centre", puck.Pos, puck.Vel)
		puck.Pos = gamemath.Vec{}
		puck.Vel = gamemath.Vec{}
		e.table.place(puck.Object, puck.Pos, e.cfg.Puck.Radius)
		return true
	}

	r := e.cfg.Puck.Radius
	hw, hh := e.cfg.Table.HalfWidth(), e.cfg.Table.HalfHeight()
	margin := e.escapeMargin()

	inGoalMouth := math.Abs(puck.Pos.X) <= e.cfg.Table.GoalWidth/2 && !e.goalLatched
	escaped := false

	if math.Abs(puck.Pos.X) > hw+margin {
		side := math.Copysign(1, puck.Pos.X)
		puck.Pos.X = side * (hw - r)
		puck.Vel.X = -side * math.Abs(puck.Vel.X) * escapeDamping
		escaped = true
	}
	if math.Abs(puck.Pos.Y) > hh+margin && !inGoalMouth {
		side := math.Copysign(1, puck.Pos.Y)
		puck.Pos.Y = side * (hh - r)
		puck.Vel.Y = -side * math.Abs(puck.Vel.Y) * escapeDamping
		escaped = true
	}
	if escaped {
		e.log.Warnf("Puck escaped the table, pulled back to %v", puck.Pos)
		e.table.place(puck.Object, puck.Pos, r)
	}
	return false
}

// escapeMargin is how far past a wall the puck may drift before it is
// considered escaped.
func (e *Engine) escapeMargin() float64 {
	return 3 * e.cfg.Puck.Radius
}
