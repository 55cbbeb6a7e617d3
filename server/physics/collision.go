package physics

import (
	"math"

	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/tags"
	"github.com/solarlune/resolv"
)

// CollisionResponse returns the velocity a paddle adds to the puck on
// contact: paddleSpeed × transfer along the contact normal. This is an
// additive arcade impulse, not a reflection. ok is false, and the delta
// zero, when any input or intermediate is non-finite.
func CollisionResponse(paddleVel, normal gamemath.Vec, transfer float64) (gamemath.Vec, bool) {
	if !paddleVel.IsFinite() || !normal.IsFinite() || !gamemath.IsFinite(transfer) {
		return gamemath.Vec{}, false
	}
	delta := normal.Scale(paddleVel.Len() * transfer)
	if !delta.IsFinite() {
		return gamemath.Vec{}, false
	}
	return delta, true
}

// contactNormal returns the unit normal from a paddle centre to the puck
// centre, falling back to the paddle's away-from-own-goal direction when
// the centres nearly coincide.
func contactNormal(pp *PaddlePhysics, puck gamemath.Vec) gamemath.Vec {
	if n, ok := puck.Sub(pp.Pos).Normalize(); ok && n.Len() > 0.5 {
		return n
	}
	return pp.ownGoalDirection()
}

// reflect bounces the approaching normal component of v off a surface with
// normal n. share is the fraction of the bounce the puck takes, 1 against
// an immovable body. friction removes that fraction of the tangential
// component.
func reflect(v, n gamemath.Vec, restitution, share, friction float64) gamemath.Vec {
	vn := v.Dot(n)
	if vn >= 0 {
		return v
	}
	tangent := v.Sub(n.Scale(vn))
	return v.Sub(n.Scale((1 + restitution) * share * vn)).Sub(tangent.Scale(friction))
}

// paddleShare is the puck's share of a bounce off a paddle of the given
// masses.
func paddleShare(puckMass, paddleMass float64) float64 {
	return paddleMass / (puckMass + paddleMass)
}

// resolveContacts settles the puck against nearby walls and paddles after a
// sub-step move.
func (e *Engine) resolveContacts() {
	puck := e.puck
	r := e.cfg.Puck.Radius

	e.table.place(puck.Object, puck.Pos, r)
	check := puck.Object.Check(0, 0, tags.ResolvWall, tags.ResolvPaddle)

	touching := make(map[*PaddlePhysics]bool, 2)
	if check != nil {
		for _, wall := range check.ObjectsByTags(tags.ResolvWall) {
			e.resolveWall(wall)
		}
		for _, obj := range check.ObjectsByTags(tags.ResolvPaddle) {
			pp, ok := obj.Data.(*PaddlePhysics)
			if !ok {
				continue
			}
			if e.resolvePaddle(pp) {
				touching[pp] = true
			}
		}
	}

	for _, pp := range e.paddles {
		pp.Touching = touching[pp]
	}
	e.table.place(puck.Object, puck.Pos, r)
}

// resolveWall pushes the puck out of a wall and bounces it.
func (e *Engine) resolveWall(wall *resolv.Object) {
	puck := e.puck
	r := e.cfg.Puck.Radius
	minX, minY, maxX, maxY := e.table.rect(wall)

	nearest := gamemath.Vec{
		X: gamemath.Clamp(puck.Pos.X, minX, maxX),
		Y: gamemath.Clamp(puck.Pos.Y, minY, maxY),
	}
	d := puck.Pos.Sub(nearest)
	dist := d.Len()
	if dist >= r {
		return
	}

	var n gamemath.Vec
	var depth float64
	if unit, ok := d.Normalize(); ok {
		n, depth = unit, r-dist
	} else {
		// Centre is inside the wall: leave along the shallowest face.
		n, depth = shallowestExit(puck.Pos, minX, minY, maxX, maxY)
		depth += r
	}

	puck.Pos = puck.Pos.Add(n.Scale(depth))
	puck.Vel = reflect(puck.Vel, n, e.cfg.Wall.Restitution, 1, e.cfg.Puck.Friction)
}

func shallowestExit(p gamemath.Vec, minX, minY, maxX, maxY float64) (gamemath.Vec, float64) {
	exits := []struct {
		n     gamemath.Vec
		depth float64
	}{
		{gamemath.Vec{X: -1}, p.X - minX},
		{gamemath.Vec{X: 1}, maxX - p.X},
		{gamemath.Vec{Y: -1}, p.Y - minY},
		{gamemath.Vec{Y: 1}, maxY - p.Y},
	}
	best := exits[0]
	for _, ex := range exits[1:] {
		if ex.depth < best.depth {
			best = ex
		}
	}
	return best.n, math.Max(best.depth, 0)
}

// resolvePaddle separates the puck from a paddle it overlaps. The transfer
// impulse is applied only when the contact begins. It reports whether the
// bodies are in contact.
func (e *Engine) resolvePaddle(pp *PaddlePhysics) bool {
	puck := e.puck
	minDist := e.cfg.Puck.Radius + e.cfg.Paddle.Radius
	if puck.Pos.DistTo(pp.Pos) >= minDist {
		return false
	}

	n := contactNormal(pp, puck.Pos)
	puck.Pos = pp.Pos.Add(n.Scale(minDist))
	puck.Vel = reflect(puck.Vel, n,
		math.Max(e.cfg.Puck.Restitution, e.cfg.Paddle.Restitution),
		paddleShare(e.cfg.Puck.Mass, e.cfg.Paddle.Mass),
		math.Min(e.cfg.Puck.Friction, e.cfg.Paddle.Friction))

	if !pp.Touching {
		if delta, ok := CollisionResponse(pp.Vel, n, e.cfg.Paddle.VelocityTransfer); ok {
			puck.Vel = puck.Vel.Add(delta)
		} else {
			e.log.Warnf("Skipped paddle %d transfer: non-finite contact", pp.Number)
		}
	}
	return true
}
