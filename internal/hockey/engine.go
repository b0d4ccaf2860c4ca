package hockey

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"

	"speedhockey/internal/physics"
	"speedhockey/internal/vmath"
)

// Config holds the simulation parameters of a match
type Config struct {
	Arena           Arena
	TickInterval    time.Duration
	MaxStepDistance float64
	Bounds          Bounds

	PuckRadius      float64
	PuckMass        float64
	PuckRestitution float64
	PuckAirFriction float64
	PaddleRadius    float64

	// InboxSize bounds the queue of session commands waiting for the loop
	InboxSize int
	// Seed for the faceoff position, 0 picks one from the clock
	Seed uint64
}

// DefaultConfig returns the 960x540 rink at ~60 Hz
func DefaultConfig() Config {
	return Config{
		Arena:           Arena{Width: 960, Height: 540},
		TickInterval:    16 * time.Millisecond,
		MaxStepDistance: 20,
		Bounds:          BoundsArena,
		PuckRadius:      20,
		PuckMass:        20,
		PuckRestitution: 1.0,
		PuckAirFriction: 0.0075,
		PaddleRadius:    35,
		InboxSize:       1024,
	}
}

var errCommandPanicked = errors.New("session command panicked")

// Engine owns the physics world and the match. All mutation happens on the
// goroutine running Run; connection handlers talk to it through the inbox.
type Engine struct {
	cfg      Config
	world    physics.World
	puck     physics.Handle
	registry *Registry
	rng      *rand.Rand

	inbox chan any

	// owned by the loop goroutine
	tick     uint64
	redScore uint32
	bluScore uint32

	mu    sync.RWMutex
	state *MatchState

	dropped atomic.Uint64
}

func NewEngine(cfg Config, world physics.World) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}

	center := cfg.Arena.Center()
	puck := world.CreateBody(physics.KindDynamic, physics.BodyParams{
		Position:    center,
		Radius:      cfg.PuckRadius,
		Mass:        cfg.PuckMass,
		Restitution: cfg.PuckRestitution,
		AirFriction: cfg.PuckAirFriction,
	})

	return &Engine{
		cfg:      cfg,
		world:    world,
		puck:     puck,
		registry: NewRegistry(),
		rng:      rand.New(rand.NewSource(seed)),
		inbox:    make(chan any, cfg.InboxSize),
		state: &MatchState{
			PuckPosition: center,
			Players:      make(map[SessionID]PlayerState),
		},
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Run ticks the match until ctx is cancelled. Session commands are applied
// between ticks, and any still queued when a tick fires are applied first.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("running game loop", slog.Duration("tick", e.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.inbox:
			e.handleCommand(cmd)
		case <-ticker.C:
			e.drain()
			e.safeStep()
		}
	}
}

func (e *Engine) drain() {
	for n := len(e.inbox); n > 0; n-- {
		e.handleCommand(<-e.inbox)
	}
}

func (e *Engine) safeStep() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panicked", slog.Uint64("tick", e.tick), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	e.Step()
}

// Step runs one tick: advance, score, snapshot and broadcast
func (e *Engine) Step() {
	e.tick++

	if err := e.world.Advance(e.cfg.TickInterval); err != nil {
		slog.Warn("physics step failed, keeping last good state", slog.Uint64("tick", e.tick), slog.Any("error", err))
	} else {
		e.detectGoal()
		e.clampPuck()
	}

	e.broadcast(e.snapshot())
}

func (e *Engine) detectGoal() {
	pos, _ := e.world.BodyPosition(e.puck)
	switch {
	case pos.X < 0:
		e.bluScore++
		slog.Info("goal", slog.String("scorer", TeamBlu.String()), slog.Any("red", e.redScore), slog.Any("blu", e.bluScore))
		e.resetPuck()
	case pos.X > e.cfg.Arena.Width:
		e.redScore++
		slog.Info("goal", slog.String("scorer", TeamRed.String()), slog.Any("red", e.redScore), slog.Any("blu", e.bluScore))
		e.resetPuck()
	}
}

// resetPuck drops the puck on the centre line at a random height
func (e *Engine) resetPuck() {
	y := e.rng.Float64() * e.cfg.Arena.Height
	e.world.SetBodyPosition(e.puck, vmath.Vec(e.cfg.Arena.Width/2, y))
	e.world.SetBodyVelocity(e.puck, vmath.Vector2{})
}

func (e *Engine) clampPuck() {
	pos, _ := e.world.BodyPosition(e.puck)
	y := vmath.Clamp(pos.Y, 0, e.cfg.Arena.Height)
	if y != pos.Y {
		e.world.SetBodyPosition(e.puck, vmath.Vec(pos.X, y))
	}
}

func (e *Engine) snapshot() *MatchState {
	puck, _ := e.world.BodyPosition(e.puck)
	m := &MatchState{
		Tick:         e.tick,
		PuckPosition: puck,
		Players:      make(map[SessionID]PlayerState, e.registry.Len()),
		RedScore:     e.redScore,
		BluScore:     e.bluScore,
	}
	e.registry.Range(func(s Session) bool {
		pos, ok := e.world.BodyPosition(s.Paddle)
		if !ok {
			pos = e.cfg.Arena.Center()
		}
		m.Players[s.ID] = PlayerState{Position: pos, Team: s.Team}
		return true
	})

	e.mu.Lock()
	e.state = m
	e.mu.Unlock()
	return m
}

func (e *Engine) broadcast(m *MatchState) {
	var dropped []SessionID
	e.registry.Range(func(s Session) bool {
		if !offer(s, m) {
			dropped = append(dropped, s.ID)
		}
		return true
	})

	for _, id := range dropped {
		e.registry.Update(id, func(s *Session) { s.Dropped++ })
	}
	if len(dropped) > 0 {
		e.dropped.Add(uint64(len(dropped)))
		slog.Debug("dropped frames for slow sessions", slog.Uint64("tick", m.Tick), slog.Int("sessions", len(dropped)))
	}
}

// offer isolates a misbehaving sink from the rest of the broadcast
func offer(s Session, m *MatchState) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sink panicked", slog.Any("session", s.ID), slog.Any("panic", r))
			ok = false
		}
	}()
	return s.Sink.Send(m)
}

// editState replaces the published state with an edited copy
func (e *Engine) editState(fn func(*MatchState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.state.Clone()
	fn(&next)
	e.state = &next
}

// Snapshot returns a copy of the latest published state
func (e *Engine) Snapshot() MatchState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

type Stats struct {
	Tick          uint64 `json:"tick"`
	Players       int    `json:"players"`
	RedScore      uint32 `json:"redScore"`
	BluScore      uint32 `json:"bluScore"`
	DroppedFrames uint64 `json:"droppedFrames"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Tick:          e.state.Tick,
		Players:       len(e.state.Players),
		RedScore:      e.state.RedScore,
		BluScore:      e.state.BluScore,
		DroppedFrames: e.dropped.Load(),
	}
}
