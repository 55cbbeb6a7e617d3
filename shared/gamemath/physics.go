package gamemath

import "math"

// Vec is a 2D vector in table units.
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec {
	return Vec{v.X + o.X, v.Y + o.Y}
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{v.X - o.X, v.Y - o.Y}
}

func (v Vec) Scale(k float64) Vec {
	return Vec{v.X * k, v.Y * k}
}

func (v Vec) Dot(o Vec) float64 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vec) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vec) IsFinite() bool {
	return IsFinite(v.X) && IsFinite(v.Y)
}

func (v Vec) DistTo(o Vec) float64 {
	return v.Sub(o).Len()
}

// Normalize returns the unit vector of v. ok is false when v is too short
// to have a meaningful direction.
func (v Vec) Normalize() (Vec, bool) {
	l := v.Len()
	if l < 1e-9 || !IsFinite(l) {
		return Vec{}, false
	}
	return Vec{v.X / l, v.Y / l}, true
}

// CapLen scales v down so its length does not exceed max.
func (v Vec) CapLen(max float64) Vec {
	l := v.Len()
	if l <= max || l == 0 {
		return v
	}
	return v.Scale(max / l)
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
