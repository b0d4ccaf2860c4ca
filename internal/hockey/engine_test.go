package hockey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/rand"

	"speedhockey/internal/physics"
	"speedhockey/internal/vmath"
)

type stubBody struct {
	kind   physics.Kind
	pos    vmath.Vector2
	vel    vmath.Vector2
	active bool
}

// stubWorld integrates dynamic bodies without collisions and counts every
// mutation made to paddles.
type stubWorld struct {
	bodies    map[physics.Handle]*stubBody
	next      physics.Handle
	mutations int
	advance   func() error
}

func newStubWorld() *stubWorld {
	return &stubWorld{bodies: make(map[physics.Handle]*stubBody)}
}

func (w *stubWorld) Advance(dt time.Duration) error {
	if w.advance != nil {
		return w.advance()
	}
	for _, b := range w.bodies {
		if b.kind == physics.KindDynamic {
			b.pos = b.pos.Add(b.vel.Scale(dt.Seconds()))
		}
	}
	return nil
}

func (w *stubWorld) CreateBody(kind physics.Kind, params physics.BodyParams) physics.Handle {
	w.next++
	w.bodies[w.next] = &stubBody{kind: kind, pos: params.Position, active: true}
	return w.next
}

func (w *stubWorld) DestroyBody(h physics.Handle) {
	delete(w.bodies, h)
}

func (w *stubWorld) SetBodyPosition(h physics.Handle, p vmath.Vector2) {
	if b, ok := w.bodies[h]; ok {
		if b.kind == physics.KindKinematic {
			w.mutations++
		}
		b.pos = p
	}
}

func (w *stubWorld) SetBodyVelocity(h physics.Handle, v vmath.Vector2) {
	if b, ok := w.bodies[h]; ok {
		if b.kind == physics.KindKinematic {
			w.mutations++
		}
		b.vel = v
	}
}

func (w *stubWorld) SetBodyActive(h physics.Handle, active bool) {
	if b, ok := w.bodies[h]; ok {
		b.active = active
	}
}

func (w *stubWorld) BodyPosition(h physics.Handle) (vmath.Vector2, bool) {
	b, ok := w.bodies[h]
	if !ok {
		return vmath.Vector2{}, false
	}
	return b.pos, true
}

func (w *stubWorld) BodyVelocity(h physics.Handle) (vmath.Vector2, bool) {
	b, ok := w.bodies[h]
	if !ok {
		return vmath.Vector2{}, false
	}
	return b.vel, true
}

type recordingSink struct {
	mu     sync.Mutex
	frames []*MatchState
	full   bool
}

func (s *recordingSink) Send(m *MatchState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, m)
	return true
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) since(n int) []*MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MatchState(nil), s.frames[n:]...)
}

func (s *recordingSink) last() *MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func newTestEngine(t *testing.T) (*Engine, *stubWorld) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 7
	w := newStubWorld()
	return NewEngine(cfg, w), w
}

func mustConnect(t *testing.T, e *Engine, id SessionID, sink Sink) {
	t.Helper()
	if err := e.connect(id, sink); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
}

func TestGoalLeftScoresBlu(t *testing.T) {
	e, w := newTestEngine(t)
	w.SetBodyPosition(e.puck, vmath.Vec(5, 100))
	w.SetBodyVelocity(e.puck, vmath.Vec(-1000, 0))

	e.Step()

	s := e.Snapshot()
	if s.BluScore != 1 || s.RedScore != 0 {
		t.Fatalf("score red=%d blu=%d, want 0-1", s.RedScore, s.BluScore)
	}
	if s.PuckPosition.X != 480 || s.PuckPosition.Y < 0 || s.PuckPosition.Y >= 540 {
		t.Fatalf("puck not reset to the centre line: %v", s.PuckPosition)
	}
	if v, _ := w.BodyVelocity(e.puck); v != (vmath.Vector2{}) {
		t.Fatalf("puck velocity after reset = %v", v)
	}
}

func TestGoalRightScoresRed(t *testing.T) {
	e, w := newTestEngine(t)
	w.SetBodyPosition(e.puck, vmath.Vec(955, 300))
	w.SetBodyVelocity(e.puck, vmath.Vec(1000, 0))

	e.Step()

	s := e.Snapshot()
	if s.RedScore != 1 || s.BluScore != 0 {
		t.Fatalf("score red=%d blu=%d, want 1-0", s.RedScore, s.BluScore)
	}
	if s.PuckPosition.X != 480 {
		t.Fatalf("puck not reset: %v", s.PuckPosition)
	}
}

func TestGoalWithPhysicsSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 3
	space := physics.NewSpace(cfg.Arena.Width, cfg.Arena.Height)
	e := NewEngine(cfg, space)
	space.SetBodyVelocity(e.puck, vmath.Vec(-3000, 0))

	for i := 0; i < 100 && e.Snapshot().BluScore == 0; i++ {
		e.Step()
	}

	s := e.Snapshot()
	if s.BluScore != 1 || s.RedScore != 0 {
		t.Fatalf("score red=%d blu=%d, want 0-1", s.RedScore, s.BluScore)
	}
	if s.PuckPosition.X != cfg.Arena.Width/2 {
		t.Fatalf("puck not reset: %v", s.PuckPosition)
	}
}

func TestScoresAreMonotonic(t *testing.T) {
	e, w := newTestEngine(t)
	rng := rand.New(rand.NewSource(11))

	var red, blu uint32
	for i := 0; i < 2000; i++ {
		if i%25 == 0 {
			w.SetBodyVelocity(e.puck, vmath.Vec(rng.Float64()*8000-4000, rng.Float64()*2000-1000))
		}
		e.Step()

		s := e.Snapshot()
		if s.RedScore < red || s.BluScore < blu {
			t.Fatalf("tick %d: score went backwards", i)
		}
		if (s.RedScore-red)+(s.BluScore-blu) > 1 {
			t.Fatalf("tick %d: more than one goal in a tick", i)
		}
		if s.PuckPosition.Y < 0 || s.PuckPosition.Y > 540 {
			t.Fatalf("tick %d: puck y %f outside the rink", i, s.PuckPosition.Y)
		}
		red, blu = s.RedScore, s.BluScore
	}
	if red+blu == 0 {
		t.Fatalf("no goals in 2000 ticks")
	}
}

func TestPuckClampedVertically(t *testing.T) {
	e, w := newTestEngine(t)

	w.SetBodyPosition(e.puck, vmath.Vec(300, 610))
	e.Step()
	if p := e.Snapshot().PuckPosition; p.Y != 540 || p.X != 300 {
		t.Fatalf("puck at %v, want (300,540)", p)
	}

	w.SetBodyPosition(e.puck, vmath.Vec(300, -4))
	e.Step()
	if p := e.Snapshot().PuckPosition; p.Y != 0 {
		t.Fatalf("puck at %v, want y=0", p)
	}
}

func TestConnectStartsAsSpectator(t *testing.T) {
	e, w := newTestEngine(t)
	mustConnect(t, e, "a", &recordingSink{})

	s, ok := e.registry.Get("a")
	if !ok || s.Team != TeamSpectator {
		t.Fatalf("session = %+v, %v", s, ok)
	}
	if w.bodies[s.Paddle].active {
		t.Fatalf("spectator paddle is in the collision set")
	}
	p, ok := e.Snapshot().Players["a"]
	if !ok || p.Position != vmath.Vec(480, 270) || p.Team != TeamSpectator {
		t.Fatalf("player state = %+v, %v", p, ok)
	}

	if err := e.connect("a", &recordingSink{}); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("duplicate connect: %v", err)
	}
}

func TestSpectatorInputIgnored(t *testing.T) {
	e, w := newTestEngine(t)
	mustConnect(t, e, "spec", &recordingSink{})
	before := w.mutations

	e.updatePosition("spec", vmath.Vec(490, 270))
	e.updatePosition("nobody", vmath.Vec(490, 270))

	if w.mutations != before {
		t.Fatalf("spectator input mutated the world")
	}
	e.Step()
	if p := e.Snapshot().Players["spec"]; p.Position != vmath.Vec(480, 270) {
		t.Fatalf("spectator paddle moved to %v", p.Position)
	}
}

func TestUpdatePositionCappedAndBounded(t *testing.T) {
	e, w := newTestEngine(t)
	mustConnect(t, e, "red", &recordingSink{})
	if err := e.joinTeam("red", TeamRed); err != nil {
		t.Fatalf("join: %v", err)
	}

	e.updatePosition("red", vmath.Vec(10000, 10000))
	s, _ := e.registry.Get("red")
	pos, _ := w.BodyPosition(s.Paddle)
	if d := pos.Dist(vmath.Vec(480, 270)); d > 20+1e-9 {
		t.Fatalf("paddle moved %f in one input", d)
	}

	e.cfg.Bounds = BoundsHalf
	e.updatePosition("red", pos.Add(vmath.Vec(15, 0)))
	pos, _ = w.BodyPosition(s.Paddle)
	if pos.X > 480 {
		t.Fatalf("red paddle crossed the centre line: %v", pos)
	}
}

func TestJoinTeamIsIdempotent(t *testing.T) {
	e, w := newTestEngine(t)
	mustConnect(t, e, "a", &recordingSink{})

	if err := e.joinTeam("a", TeamBlu); err != nil {
		t.Fatalf("join: %v", err)
	}
	e.updatePosition("a", vmath.Vec(490, 270))
	if err := e.joinTeam("a", TeamBlu); err != nil {
		t.Fatalf("second join: %v", err)
	}

	s, _ := e.registry.Get("a")
	if s.Team != TeamBlu {
		t.Fatalf("team = %s", s.Team)
	}
	b := w.bodies[s.Paddle]
	if b.pos != vmath.Vec(480, 270) || b.vel != (vmath.Vector2{}) || !b.active {
		t.Fatalf("paddle after rejoin = %+v", b)
	}

	if err := e.joinTeam("a", TeamSpectator); err != nil {
		t.Fatalf("spectate: %v", err)
	}
	if w.bodies[s.Paddle].active {
		t.Fatalf("spectator paddle still collides")
	}
}

func TestJoinTeamRejectsUnknown(t *testing.T) {
	e, _ := newTestEngine(t)
	mustConnect(t, e, "a", &recordingSink{})

	if err := e.joinTeam("a", TeamUnrecognized); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("join UNRECOGNIZED: %v", err)
	}
	if s, _ := e.registry.Get("a"); s.Team != TeamSpectator {
		t.Fatalf("team changed to %s", s.Team)
	}
	if err := e.joinTeam("ghost", TeamRed); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("join for unknown session: %v", err)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	e, w := newTestEngine(t)
	watcher := &recordingSink{}
	mustConnect(t, e, "watcher", watcher)
	mustConnect(t, e, "gone", &recordingSink{})
	_ = e.joinTeam("gone", TeamRed)
	s, _ := e.registry.Get("gone")

	e.disconnect("gone")
	e.disconnect("gone")

	if _, ok := e.registry.Get("gone"); ok {
		t.Fatalf("session still registered")
	}
	if _, ok := w.bodies[s.Paddle]; ok {
		t.Fatalf("paddle body not destroyed")
	}
	if _, ok := e.Snapshot().Players["gone"]; ok {
		t.Fatalf("player still in match state")
	}

	e.Step()
	if _, ok := watcher.last().Players["gone"]; ok {
		t.Fatalf("broadcast still carries the disconnected player")
	}
}

func TestBroadcastIncludesSpectators(t *testing.T) {
	e, _ := newTestEngine(t)
	a, b := &recordingSink{}, &recordingSink{}
	mustConnect(t, e, "a", a)
	mustConnect(t, e, "b", b)
	_ = e.joinTeam("b", TeamRed)

	e.Step()

	for name, sink := range map[string]*recordingSink{"a": a, "b": b} {
		m := sink.last()
		if m == nil {
			t.Fatalf("%s got no frame", name)
		}
		if len(m.Players) != 2 || m.Players["a"].Team != TeamSpectator || m.Players["b"].Team != TeamRed {
			t.Fatalf("%s frame players = %+v", name, m.Players)
		}
		if m.Tick != 1 {
			t.Fatalf("%s frame tick = %d", name, m.Tick)
		}
	}
}

func TestSlowSinkDropsFrames(t *testing.T) {
	e, _ := newTestEngine(t)
	slow, fast := &recordingSink{full: true}, &recordingSink{}
	mustConnect(t, e, "slow", slow)
	mustConnect(t, e, "fast", fast)

	e.Step()
	e.Step()

	if fast.count() != 2 {
		t.Fatalf("fast sink got %d frames", fast.count())
	}
	if got := e.Stats().DroppedFrames; got != 2 {
		t.Fatalf("dropped frames = %d", got)
	}
	if s, _ := e.registry.Get("slow"); s.Dropped != 2 {
		t.Fatalf("slow session dropped = %d", s.Dropped)
	}
}

type panicSink struct{}

func (panicSink) Send(*MatchState) bool { panic("boom") }

func TestPanickingSinkIsIsolated(t *testing.T) {
	e, _ := newTestEngine(t)
	ok := &recordingSink{}
	mustConnect(t, e, "bad", panicSink{})
	mustConnect(t, e, "ok", ok)

	e.Step()

	if ok.count() != 1 {
		t.Fatalf("healthy sink got %d frames", ok.count())
	}
}

func TestPhysicsErrorKeepsTicking(t *testing.T) {
	e, w := newTestEngine(t)
	sink := &recordingSink{}
	mustConnect(t, e, "a", sink)
	w.SetBodyPosition(e.puck, vmath.Vec(-10, 100))
	w.advance = func() error { return fmt.Errorf("advance: %w", physics.ErrDegenerate) }

	e.Step()
	e.Step()

	if sink.count() != 2 {
		t.Fatalf("got %d frames, want 2", sink.count())
	}
	s := e.Snapshot()
	if s.Tick != 2 || s.BluScore != 0 {
		t.Fatalf("tick=%d blu=%d after failed steps", s.Tick, s.BluScore)
	}

	w.advance = nil
	e.Step()
	if e.Snapshot().BluScore != 1 {
		t.Fatalf("goal not scored once physics recovered")
	}
}

func TestSafeStepRecoversPanic(t *testing.T) {
	e, w := newTestEngine(t)
	w.advance = func() error { panic("solver exploded") }

	e.safeStep()

	w.advance = nil
	e.safeStep()
	if got := e.Snapshot().Tick; got != 2 {
		t.Fatalf("tick = %d, want 2", got)
	}
}

func TestRunAppliesSessionCommands(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	cfg.Seed = 5
	e := NewEngine(cfg, newStubWorld())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	watcher, player := &recordingSink{}, &recordingSink{}
	if err := e.Connect(ctx, "watcher", watcher); err != nil {
		t.Fatalf("connect watcher: %v", err)
	}
	if err := e.Connect(ctx, "p1", player); err != nil {
		t.Fatalf("connect p1: %v", err)
	}
	if err := e.JoinTeam(ctx, "p1", TeamRed); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !e.UpdatePosition("p1", vmath.Vec(470, 270)) {
		t.Fatalf("input dropped with an empty inbox")
	}

	waitFor(t, func() bool {
		m := watcher.last()
		return m != nil && m.Players["p1"].Team == TeamRed && m.Players["p1"].Position == vmath.Vec(470, 270)
	})

	if err := e.Disconnect(ctx, "p1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	n := watcher.count()
	waitFor(t, func() bool { return watcher.count() > n+3 })
	for _, m := range watcher.since(n) {
		if _, ok := m.Players["p1"]; ok {
			t.Fatalf("tick %d still carries p1", m.Tick)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestJoinTeamRejectedBeforeQueueing(t *testing.T) {
	e, _ := newTestEngine(t)
	// no loop is running, so a queued command would block until the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := e.JoinTeam(ctx, "a", Team(9)); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("join: %v", err)
	}
	if err := e.Connect(ctx, "a", &recordingSink{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("connect without a loop: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
