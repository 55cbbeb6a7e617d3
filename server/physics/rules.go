package physics

import (
	"math"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/shared/netconfig"
)

// CheckGoal reports which player scored with the puck centred at (x, y), or
// NoPlayer. Player 1 scores into the top goal (negative y), player 2 into
// the bottom one. Nothing scores outside the goal mouth.
func CheckGoal(t config.TableConfig, puckRadius, x, y float64) netconfig.PlayerNumber {
	if !gamemath.IsFinite(x) || !gamemath.IsFinite(y) {
		return netconfig.NoPlayer
	}
	if math.Abs(x) > t.GoalWidth/2 {
		return netconfig.NoPlayer
	}
	line := t.HalfHeight() + puckRadius
	switch {
	case y < -line:
		return netconfig.Player1
	case y > line:
		return netconfig.Player2
	}
	return netconfig.NoPlayer
}

// ClampPaddle limits a paddle centre to the table and to its owner's half.
// Player 1 owns the bottom half (y > 0), player 2 the top half.
func ClampPaddle(t config.TableConfig, radius float64, p netconfig.PlayerNumber, x, y float64) (float64, float64) {
	maxX := t.HalfWidth() - radius
	maxY := t.HalfHeight() - radius

	x = gamemath.Clamp(x, -maxX, maxX)
	if p == netconfig.Player2 {
		y = gamemath.Clamp(y, -maxY, -radius)
	} else {
		y = gamemath.Clamp(y, radius, maxY)
	}
	return x, y
}

// startPosition is where a paddle sits at the beginning of a game.
func startPosition(t config.TableConfig, p netconfig.PlayerNumber) gamemath.Vec {
	if p == netconfig.Player2 {
		return gamemath.Vec{X: 0, Y: -t.Height / 4}
	}
	return gamemath.Vec{X: 0, Y: t.Height / 4}
}
