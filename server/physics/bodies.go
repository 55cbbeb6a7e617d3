package physics

import (
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/netconfig"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
)

// PuckPhysics holds the puck's simulation state. This is not a donburi
// component; the engine copies it into netcomponents.Puck after each tick.
type PuckPhysics struct {
	Object *resolv.Object
	Entity donburi.Entity
	Pos    gamemath.Vec
	Vel    gamemath.Vec // Units per reference step
}

// PaddlePhysics holds one player-driven paddle.
type PaddlePhysics struct {
	Object *resolv.Object
	Entity donburi.Entity
	Number netconfig.PlayerNumber
	Pos    gamemath.Vec

	// Reported velocity, derived from target deltas. It only feeds the
	// collision transfer; paddles are positioned directly.
	Vel gamemath.Vec

	// Latest clamped target (written by SetPaddleTarget, read by the tick)
	Target    gamemath.Vec
	HasTarget bool

	// Whether the puck was touching this paddle after the previous sub-step,
	// so the transfer fires once per contact.
	Touching bool
}

// ownGoalDirection is the unit vector pointing away from the goal this
// paddle defends.
func (pp *PaddlePhysics) ownGoalDirection() gamemath.Vec {
	if pp.Number == netconfig.Player2 {
		return gamemath.Vec{X: 0, Y: 1}
	}
	return gamemath.Vec{X: 0, Y: -1}
}
