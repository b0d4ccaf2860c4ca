package hockey

import (
	"fmt"

	"speedhockey/internal/vmath"
)

// Validate caps a requested paddle move to maxStep along the line from
// current to requested. Non-finite requests are rejected by returning current.
func Validate(current, requested vmath.Vector2, maxStep float64) vmath.Vector2 {
	if !requested.IsFinite() {
		return current
	}
	delta := requested.Sub(current)
	dist := delta.Len()
	if dist == 0 {
		return current
	}
	if dist <= maxStep {
		return requested
	}
	return current.Add(delta.Scale(maxStep / dist))
}

// Bounds is the positional policy applied to a paddle after the step cap
type Bounds string

const (
	BoundsNone  Bounds = "none"
	BoundsArena Bounds = "arena"
	BoundsHalf  Bounds = "half"
)

func ParseBounds(s string) (Bounds, error) {
	switch b := Bounds(s); b {
	case BoundsNone, BoundsArena, BoundsHalf:
		return b, nil
	case "":
		return BoundsArena, nil
	default:
		return "", fmt.Errorf("unknown paddle bounds policy %q", s)
	}
}

// Arena is the playing field. RED defends the left goal (x = 0) and BLU the
// right one (x = Width).
type Arena struct {
	Width  float64
	Height float64
}

func (a Arena) Center() vmath.Vector2 {
	return vmath.Vec(a.Width/2, a.Height/2)
}

// Bound limits p according to policy. Every policy keeps a point that is
// already inside its region unchanged.
func Bound(p vmath.Vector2, team Team, policy Bounds, arena Arena) vmath.Vector2 {
	switch policy {
	case BoundsArena:
		return vmath.ClampRect(p, vmath.Vector2{}, vmath.Vec(arena.Width, arena.Height))
	case BoundsHalf:
		lo, hi := vmath.Vector2{}, vmath.Vec(arena.Width, arena.Height)
		switch team {
		case TeamRed:
			hi.X = arena.Width / 2
		case TeamBlu:
			lo.X = arena.Width / 2
		}
		return vmath.ClampRect(p, lo, hi)
	default:
		return p
	}
}
