package vmath

import "math"

// Vector2 is a point or displacement in arena space.
type Vector2 struct {
	X float64
	Y float64
}

func Vec(x, y float64) Vector2 {
	return Vector2{X: x, Y: y}
}

func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector2) Scale(f float64) Vector2 {
	return Vector2{X: v.X * f, Y: v.Y * f}
}

func (v Vector2) Dot(o Vector2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Len returns the Euclidean length
func (v Vector2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Dist returns the Euclidean distance between v and o
func (v Vector2) Dist(o Vector2) float64 {
	return o.Sub(v).Len()
}

// Normalize returns the unit vector, zero-safe
func (v Vector2) Normalize() Vector2 {
	l := v.Len()
	if l == 0 {
		return Vector2{}
	}
	return Vector2{X: v.X / l, Y: v.Y / l}
}

// ClampLen limits the vector to maxLen while preserving direction
func (v Vector2) ClampLen(maxLen float64) Vector2 {
	l := v.Len()
	if l <= maxLen || l == 0 {
		return v
	}
	return v.Scale(maxLen / l)
}

// IsFinite reports whether both components are neither NaN nor infinite
func (v Vector2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Clamp returns x limited to [lo, hi]
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// ClampRect limits v to the axis-aligned rectangle [min, max]
func ClampRect(v, min, max Vector2) Vector2 {
	return Vector2{X: Clamp(v.X, min.X, max.X), Y: Clamp(v.Y, min.Y, max.Y)}
}
