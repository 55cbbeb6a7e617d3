package physics

import (
	"math"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/shared/gamemath"
	"github.com/automoto/airhockey-mp/tags"
	"github.com/solarlune/resolv"
)

const cellSize = 16

// table holds the collision space. resolv spaces start at the
// origin, so table coordinates are shifted by (offsetX, offsetY).
type table struct {
	Space   *resolv.Space
	offsetX float64
	offsetY float64
}

// newTable builds the four walls, with a goal-width gap centred in each short
// wall, inside a space padded so an escaping puck stays addressable.
func newTable(cfg config.TableConfig, puckRadius float64) *table {
	hw, hh, wt := cfg.HalfWidth(), cfg.HalfHeight(), cfg.WallThickness
	pad := wt + 8*puckRadius

	t := &table{
		offsetX: hw + pad,
		offsetY: hh + pad,
	}
	t.Space = resolv.NewSpace(
		int(math.Ceil(2*(hw+pad))),
		int(math.Ceil(2*(hh+pad))),
		cellSize, cellSize,
	)

	halfGoal := cfg.GoalWidth / 2
	sideW := hw + wt - halfGoal

	// Side walls run the full height including the corners.
	t.addWall(-hw-wt, -hh-wt, wt, cfg.Height+2*wt)
	t.addWall(hw, -hh-wt, wt, cfg.Height+2*wt)

	// Short walls are split around the goal mouth.
	t.addWall(-hw-wt, -hh-wt, sideW, wt)
	t.addWall(halfGoal, -hh-wt, sideW, wt)
	t.addWall(-hw-wt, hh, sideW, wt)
	t.addWall(halfGoal, hh, sideW, wt)

	return t
}

func (t *table) addWall(x, y, w, h float64) {
	obj := resolv.NewObject(x+t.offsetX, y+t.offsetY, w, h, tags.ResolvWall)
	obj.SetShape(resolv.NewRectangle(0, 0, w, h))
	t.Space.Add(obj)
}

// newCircleObject creates the broadphase box for a round body.
func (t *table) newCircleObject(pos gamemath.Vec, radius float64, tag string) *resolv.Object {
	obj := resolv.NewObject(pos.X-radius+t.offsetX, pos.Y-radius+t.offsetY, 2*radius, 2*radius, tag)
	t.Space.Add(obj)
	return obj
}

// place moves a body's broadphase box to a new centre.
func (t *table) place(obj *resolv.Object, pos gamemath.Vec, radius float64) {
	obj.X = pos.X - radius + t.offsetX
	obj.Y = pos.Y - radius + t.offsetY
	obj.Update()
}

// rect returns a wall's bounds in table coordinates.
func (t *table) rect(obj *resolv.Object) (minX, minY, maxX, maxY float64) {
	minX = obj.X - t.offsetX
	minY = obj.Y - t.offsetY
	return minX, minY, minX + obj.W, minY + obj.H
}
