package hockey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"speedhockey/internal/physics"
	"speedhockey/internal/vmath"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrInvalidTeam    = errors.New("invalid team")
)

type connectCmd struct {
	id    SessionID
	sink  Sink
	reply chan error
}

type joinTeamCmd struct {
	id    SessionID
	team  Team
	reply chan error
}

type updatePositionCmd struct {
	id  SessionID
	pos vmath.Vector2
}

type disconnectCmd struct {
	id    SessionID
	reply chan error
}

// Connect registers a session as a spectator with its paddle at the centre
// of the rink. It returns once the engine has applied it.
func (e *Engine) Connect(ctx context.Context, id SessionID, sink Sink) error {
	return e.call(ctx, func(reply chan error) any {
		return connectCmd{id: id, sink: sink, reply: reply}
	})
}

// JoinTeam moves a session to team and recentres its paddle
func (e *Engine) JoinTeam(ctx context.Context, id SessionID, team Team) error {
	if !team.Valid() {
		return fmt.Errorf("join %s: %w", team, ErrInvalidTeam)
	}
	return e.call(ctx, func(reply chan error) any {
		return joinTeamCmd{id: id, team: team, reply: reply}
	})
}

// UpdatePosition queues a paddle move without blocking. It reports false
// when the inbox is full and the input was dropped.
func (e *Engine) UpdatePosition(id SessionID, pos vmath.Vector2) bool {
	select {
	case e.inbox <- updatePositionCmd{id: id, pos: pos}:
		return true
	default:
		return false
	}
}

// Disconnect removes a session. Once it returns the session is absent from
// every later broadcast.
func (e *Engine) Disconnect(ctx context.Context, id SessionID) error {
	return e.call(ctx, func(reply chan error) any {
		return disconnectCmd{id: id, reply: reply}
	})
}

func (e *Engine) call(ctx context.Context, build func(chan error) any) error {
	reply := make(chan error, 1)
	select {
	case e.inbox <- build(reply):
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handleCommand(cmd any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session command panicked", slog.Any("command", fmt.Sprintf("%T", cmd)), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	switch c := cmd.(type) {
	case connectCmd:
		err := errCommandPanicked
		defer func() { c.reply <- err }()
		err = e.connect(c.id, c.sink)
	case joinTeamCmd:
		err := errCommandPanicked
		defer func() { c.reply <- err }()
		err = e.joinTeam(c.id, c.team)
	case updatePositionCmd:
		e.updatePosition(c.id, c.pos)
	case disconnectCmd:
		err := errCommandPanicked
		defer func() { c.reply <- err }()
		e.disconnect(c.id)
		err = nil
	default:
		slog.Warn("unhandled engine command", slog.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (e *Engine) connect(id SessionID, sink Sink) error {
	if _, ok := e.registry.Get(id); ok {
		return ErrSessionExists
	}

	center := e.cfg.Arena.Center()
	paddle := e.world.CreateBody(physics.KindKinematic, physics.BodyParams{
		Position: center,
		Radius:   e.cfg.PaddleRadius,
	})
	e.world.SetBodyActive(paddle, false)

	if err := e.registry.Register(&Session{ID: id, Team: TeamSpectator, Paddle: paddle, Sink: sink}); err != nil {
		e.world.DestroyBody(paddle)
		return err
	}
	e.editState(func(m *MatchState) {
		m.Players[id] = PlayerState{Position: center, Team: TeamSpectator}
	})

	slog.Info("player connected", slog.Any("session", id), slog.Int("players", e.registry.Len()))
	return nil
}

func (e *Engine) joinTeam(id SessionID, team Team) error {
	if !team.Valid() {
		return fmt.Errorf("join %s: %w", team, ErrInvalidTeam)
	}

	var paddle physics.Handle
	if !e.registry.Update(id, func(s *Session) {
		s.Team = team
		paddle = s.Paddle
	}) {
		return fmt.Errorf("join %s: %w", id, ErrUnknownSession)
	}

	center := e.cfg.Arena.Center()
	e.world.SetBodyPosition(paddle, center)
	e.world.SetBodyVelocity(paddle, vmath.Vector2{})
	e.world.SetBodyActive(paddle, team.Playing())
	e.editState(func(m *MatchState) {
		m.Players[id] = PlayerState{Position: center, Team: team}
	})

	slog.Debug("player joined team", slog.Any("session", id), slog.String("team", team.String()))
	return nil
}

func (e *Engine) updatePosition(id SessionID, requested vmath.Vector2) {
	s, ok := e.registry.Get(id)
	if !ok || !s.Team.Playing() {
		return
	}
	current, ok := e.world.BodyPosition(s.Paddle)
	if !ok {
		return
	}

	next := Validate(current, requested, e.cfg.MaxStepDistance)
	next = Bound(next, s.Team, e.cfg.Bounds, e.cfg.Arena)
	if next != current {
		e.world.SetBodyPosition(s.Paddle, next)
	}
}

func (e *Engine) disconnect(id SessionID) {
	s, ok := e.registry.Unregister(id)
	if !ok {
		return
	}
	e.world.DestroyBody(s.Paddle)
	e.editState(func(m *MatchState) {
		delete(m.Players, id)
	})

	slog.Info("player disconnected", slog.Any("session", id), slog.Int("players", e.registry.Len()))
}
