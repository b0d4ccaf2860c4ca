package physics

import (
	"errors"
	"time"

	"speedhockey/internal/vmath"
)

// Handle identifies a body inside a World. The zero Handle is never issued.
type Handle uint64

type Kind uint8

const (
	// KindDynamic bodies are integrated from their velocity and bounce off
	// walls and active kinematic bodies.
	KindDynamic Kind = iota
	// KindKinematic bodies are teleported by their owner and are never pushed.
	KindKinematic
)

func (k Kind) String() string {
	switch k {
	case KindDynamic:
		return "dynamic"
	case KindKinematic:
		return "kinematic"
	default:
		return "unknown"
	}
}

// BodyParams describes a circular body. Rotation is always locked, so bodies
// carry no angular velocity.
type BodyParams struct {
	Position    vmath.Vector2
	Radius      float64
	Mass        float64
	Restitution float64
	// AirFriction is the fraction of velocity lost per step
	AirFriction float64
}

// ErrDegenerate is returned by Advance when the step produced a non-finite
// state. The world is rolled back to the state before the step.
var ErrDegenerate = errors.New("physics: degenerate state")

// World is the rigid-body simulation the game loop drives. Implementations
// are not safe for concurrent use; a single owner goroutine calls them.
type World interface {
	Advance(dt time.Duration) error
	CreateBody(kind Kind, params BodyParams) Handle
	DestroyBody(h Handle)
	SetBodyPosition(h Handle, p vmath.Vector2)
	SetBodyVelocity(h Handle, v vmath.Vector2)
	// SetBodyActive adds or removes the body from the collision set.
	SetBodyActive(h Handle, active bool)
	BodyPosition(h Handle) (vmath.Vector2, bool)
	BodyVelocity(h Handle) (vmath.Vector2, bool)
}
