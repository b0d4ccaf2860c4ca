package physics

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/solarlune/resolv"

	"speedhockey/internal/vmath"
)

const (
	tagDynamic   = "dynamic"
	tagKinematic = "kinematic"

	cellSize = 32
)

type saved struct{ pos, vel vmath.Vector2 }

type body struct {
	handle Handle
	kind   Kind
	params BodyParams
	active bool

	pos     vmath.Vector2
	vel     vmath.Vector2
	prevPos vmath.Vector2 // kinematic only: position at the start of the step

	obj *resolv.Object
}

// Space is a World of circular bodies inside a rectangle whose top and
// bottom edges are walls. The left and right edges are open.
// Broadphase contact queries go through a resolv.Space.
type Space struct {
	width  float64
	height float64

	// MaxSpeed caps dynamic body speed in units per second (0 = uncapped).
	MaxSpeed float64

	space      *resolv.Space
	bodies     map[Handle]*body
	nextHandle Handle
	lastStep   float64
}

// NewSpace creates an empty world covering [0,width]x[0,height]
func NewSpace(width, height float64) *Space {
	return &Space{
		width:    width,
		height:   height,
		space:    resolv.NewSpace(int(math.Ceil(width)), int(math.Ceil(height)), cellSize, cellSize),
		bodies:   make(map[Handle]*body),
		lastStep: 1.0 / 60.0,
	}
}

func (s *Space) CreateBody(kind Kind, params BodyParams) Handle {
	s.nextHandle++
	tag := tagDynamic
	if kind == KindKinematic {
		tag = tagKinematic
	}

	r := params.Radius
	b := &body{
		handle:  s.nextHandle,
		kind:    kind,
		params:  params,
		pos:     params.Position,
		prevPos: params.Position,
		obj:     resolv.NewObject(params.Position.X-r, params.Position.Y-r, 2*r, 2*r, tag),
	}
	b.obj.Data = b
	s.bodies[b.handle] = b
	s.setActive(b, true)

	slog.Debug("created body", slog.Any("handle", b.handle), slog.String("kind", kind.String()))
	return b.handle
}

func (s *Space) DestroyBody(h Handle) {
	b, ok := s.bodies[h]
	if !ok {
		return
	}
	s.setActive(b, false)
	delete(s.bodies, h)
}

func (s *Space) SetBodyPosition(h Handle, p vmath.Vector2) {
	b, ok := s.bodies[h]
	if !ok {
		return
	}
	b.pos = p
	s.sync(b)
}

// SetBodyVelocity sets a dynamic body's velocity. Kinematic bodies derive
// their velocity from displacement per step, so for them the motion history
// is rewritten to report v over the next step.
func (s *Space) SetBodyVelocity(h Handle, v vmath.Vector2) {
	b, ok := s.bodies[h]
	if !ok {
		return
	}
	b.vel = v
	if b.kind == KindKinematic {
		b.prevPos = b.pos.Sub(v.Scale(s.lastStep))
	}
}

func (s *Space) SetBodyActive(h Handle, active bool) {
	if b, ok := s.bodies[h]; ok {
		s.setActive(b, active)
	}
}

func (s *Space) BodyPosition(h Handle) (vmath.Vector2, bool) {
	b, ok := s.bodies[h]
	if !ok {
		return vmath.Vector2{}, false
	}
	return b.pos, true
}

func (s *Space) BodyVelocity(h Handle) (vmath.Vector2, bool) {
	b, ok := s.bodies[h]
	if !ok {
		return vmath.Vector2{}, false
	}
	return b.vel, true
}

// Advance integrates dynamic bodies by dt, bounces them off the walls and
// off active kinematic bodies.
func (s *Space) Advance(dt time.Duration) error {
	secs := dt.Seconds()
	if secs <= 0 {
		return nil
	}
	s.lastStep = secs

	backup := make(map[Handle]saved)

	for _, b := range s.bodies {
		if b.kind == KindKinematic {
			b.vel = b.pos.Sub(b.prevPos).Scale(1 / secs)
			b.prevPos = b.pos
			continue
		}
		backup[b.handle] = saved{b.pos, b.vel}
	}

	for _, b := range s.bodies {
		if b.kind != KindDynamic {
			continue
		}
		b.vel = b.vel.Scale(1 - b.params.AirFriction)
		if s.MaxSpeed > 0 {
			b.vel = b.vel.ClampLen(s.MaxSpeed)
		}
		b.pos = b.pos.Add(b.vel.Scale(secs))
		if !b.pos.IsFinite() || !b.vel.IsFinite() {
			s.rollback(backup)
			return fmt.Errorf("body %d: %w", b.handle, ErrDegenerate)
		}
		s.bounceWalls(b)
		s.sync(b)
		s.resolveContacts(b)
	}
	return nil
}

// rollback restores dynamic bodies to their state before the step. Saved
// values that were already non-finite are replaced so the next step can
// succeed.
func (s *Space) rollback(backup map[Handle]saved) {
	for h, st := range backup {
		b := s.bodies[h]
		b.pos, b.vel = st.pos, st.vel
		if !b.pos.IsFinite() {
			b.pos = vmath.Vec(s.width/2, s.height/2)
		}
		if !b.vel.IsFinite() {
			b.vel = vmath.Vector2{}
		}
		s.sync(b)
	}
}

func (s *Space) bounceWalls(b *body) {
	r := b.params.Radius
	if b.pos.Y-r < 0 {
		b.pos.Y = r
		if b.vel.Y < 0 {
			b.vel.Y = -b.vel.Y * b.params.Restitution
		}
	}
	if b.pos.Y+r > s.height {
		b.pos.Y = s.height - r
		if b.vel.Y > 0 {
			b.vel.Y = -b.vel.Y * b.params.Restitution
		}
	}
}

// resolveContacts pushes a dynamic body out of every active kinematic body it
// overlaps and reflects its velocity relative to that body.
func (s *Space) resolveContacts(b *body) {
	if !b.active {
		return
	}
	col := b.obj.Check(0, 0, tagKinematic)
	if col == nil {
		return
	}

	seen := make(map[*body]bool)
	for _, o := range col.Objects {
		k, ok := o.Data.(*body)
		if !ok || !k.active || seen[k] {
			continue
		}
		seen[k] = true

		delta := b.pos.Sub(k.pos)
		dist := delta.Len()
		minDist := b.params.Radius + k.params.Radius
		if dist >= minDist {
			continue
		}

		normal := delta.Normalize()
		if dist == 0 {
			normal = vmath.Vec(1, 0)
		}
		b.pos = k.pos.Add(normal.Scale(minDist))

		rel := b.vel.Sub(k.vel)
		if vn := rel.Dot(normal); vn < 0 {
			b.vel = b.vel.Sub(normal.Scale((1 + b.params.Restitution) * vn))
		}
		s.bounceWalls(b)
		s.sync(b)
	}
}

func (s *Space) setActive(b *body, active bool) {
	if b.active == active {
		return
	}
	b.active = active
	if active {
		s.sync(b)
		s.space.Add(b.obj)
	} else {
		s.space.Remove(b.obj)
	}
}

func (s *Space) sync(b *body) {
	r := b.params.Radius
	b.obj.X = b.pos.X - r
	b.obj.Y = b.pos.Y - r
	if b.active {
		b.obj.Update()
	}
}
