// Package client is a headless player that joins a team and chases the puck.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"speedhockey/internal/codec"
	"speedhockey/internal/hockey"
	"speedhockey/internal/vmath"
)

// paddle offset behind the puck, roughly the paddle radius
const chaseOffset = 35

type Bot struct {
	URL    string
	Codec  codec.Codec
	Team   hockey.Team
	Header http.Header
	// InputInterval is how often the bot sends a new paddle position
	InputInterval time.Duration
}

// Run plays until ctx is cancelled or the server goes away
func (b *Bot) Run(ctx context.Context) error {
	c := b.Codec
	if c == nil {
		c = codec.Proto{}
	}
	interval := b.InputInterval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}

	dialer := websocket.Dialer{Subprotocols: []string{codec.Subprotocol(c)}, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, b.URL, b.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.URL, err)
	}
	defer conn.Close()

	// Network reader
	ingress := make(chan codec.ServerMessage, 8)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readServer(conn, c, ingress, readErr, done)

	p := player{codec: c, conn: conn, team: b.Team}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case m := <-ingress:
			if err := p.handle(m); err != nil {
				return err
			}
		case <-ticker.C:
			if err := p.move(); err != nil {
				return err
			}
		}
	}
}

type frameReader interface {
	ReadMessage() (int, []byte, error)
}

// readServer decodes frames into ingress until a read fails or done is closed
func readServer(r frameReader, c codec.Codec, ingress chan<- codec.ServerMessage, readErr chan<- error, done <-chan struct{}) {
	for {
		_, data, err := r.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		m, err := c.DecodeServer(data)
		if err != nil {
			slog.Debug("dropping server message", slog.Any("error", err))
			continue
		}
		select {
		case ingress <- m:
		case <-done:
			return
		}
	}
}

type player struct {
	codec codec.Codec
	conn  *websocket.Conn
	team  hockey.Team

	id     hockey.SessionID
	arena  hockey.Arena
	joined bool
	state  *hockey.MatchState
}

func (p *player) handle(m codec.ServerMessage) error {
	switch {
	case m.Welcome != nil:
		p.id = hockey.SessionID(m.Welcome.SessionID)
		p.arena = hockey.Arena{Width: m.Welcome.ArenaWidth, Height: m.Welcome.ArenaHeight}
		slog.Info("joined server", slog.String("session", m.Welcome.SessionID), slog.String("team", p.team.String()))
		if err := p.write(codec.ClientMessage{JoinTeam: &codec.JoinTeam{Team: p.team}}); err != nil {
			return err
		}
		p.joined = true
	case m.GameState != nil:
		if p.state != nil && (m.GameState.RedScore != p.state.RedScore || m.GameState.BluScore != p.state.BluScore) {
			slog.Info("score", slog.Any("red", m.GameState.RedScore), slog.Any("blu", m.GameState.BluScore))
		}
		p.state = m.GameState
	}
	return nil
}

func (p *player) move() error {
	if !p.joined || p.state == nil || !p.team.Playing() {
		return nil
	}
	me, ok := p.state.Players[p.id]
	if !ok || me.Team != p.team {
		return nil
	}
	target := Chase(p.state.PuckPosition, p.team, p.arena)
	if target == me.Position {
		return nil
	}
	return p.write(codec.ClientMessage{UpdatePosition: &codec.UpdatePosition{Position: target}})
}

func (p *player) write(m codec.ClientMessage) error {
	b, err := p.codec.EncodeClient(m)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if p.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	if err := p.conn.WriteMessage(messageType, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Chase returns the spot just behind the puck on the side of team's own
// goal. RED shoots right and BLU shoots left.
func Chase(puck vmath.Vector2, team hockey.Team, arena hockey.Arena) vmath.Vector2 {
	target := puck
	switch team {
	case hockey.TeamRed:
		target.X -= chaseOffset
	case hockey.TeamBlu:
		target.X += chaseOffset
	}
	if arena.Width > 0 && arena.Height > 0 {
		target = vmath.ClampRect(target, vmath.Vector2{}, vmath.Vec(arena.Width, arena.Height))
	}
	return target
}
