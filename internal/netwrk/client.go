package netwrk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"

	"speedhockey/internal/codec"
	"speedhockey/internal/hockey"
)

// Client is one WebSocket connection. The reader feeds the engine and the
// writer drains the broadcast queue; the engine only ever calls Send.
type Client struct {
	ID hockey.SessionID

	server *Server
	conn   *websocket.Conn
	codec  codec.Codec
	send   chan *hockey.MatchState

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(s *Server, id hockey.SessionID, conn *websocket.Conn, c codec.Codec) *Client {
	ctx, cancel := context.WithCancel(s.ctx)
	return &Client{
		ID:     id,
		server: s,
		conn:   conn,
		codec:  c,
		send:   make(chan *hockey.MatchState, s.opts.SendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send queues a state for the writer and drops it when the queue is full
func (c *Client) Send(state *hockey.MatchState) bool {
	select {
	case c.send <- state:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		if err := c.server.engine.Disconnect(c.server.ctx, c.ID); err != nil {
			slog.Debug("disconnect not applied", slog.Any("session", c.ID), slog.Any("error", err))
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	limiter := newRateLimiter(c.server.opts.InputRateLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read failed", slog.Any("session", c.ID), slog.Any("error", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !limiter.Allow(time.Now()) {
			continue
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic handling client message", slog.Any("session", c.ID), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	msg, err := c.codec.DecodeClient(data)
	if err != nil {
		slog.Debug("dropping client message", slog.Any("session", c.ID), slog.Any("error", err))
		return
	}

	switch {
	case msg.JoinTeam != nil:
		if err := c.server.engine.JoinTeam(c.ctx, c.ID, msg.JoinTeam.Team); err != nil {
			slog.Debug("join team ignored", slog.Any("session", c.ID), slog.Any("error", err))
		}
	case msg.UpdatePosition != nil:
		if !c.server.engine.UpdatePosition(c.ID, msg.UpdatePosition.Position) {
			slog.Debug("engine inbox full, input dropped", slog.Any("session", c.ID))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	cfg := c.server.engine.Config()
	welcome := &codec.Welcome{
		SessionID:   string(c.ID),
		ArenaWidth:  cfg.Arena.Width,
		ArenaHeight: cfg.Arena.Height,
		TickMs:      uint32(cfg.TickInterval / time.Millisecond),
	}
	if err := c.write(codec.ServerMessage{Welcome: welcome}); err != nil {
		slog.Debug("failed to send welcome", slog.Any("session", c.ID), slog.Any("error", err))
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case state := <-c.send:
			if err := c.write(codec.ServerMessage{GameState: state}); err != nil {
				if errors.Is(err, codec.ErrMalformed) {
					slog.Error("failed to encode game state", slog.Any("session", c.ID), slog.Any("error", err))
					continue
				}
				slog.Debug("websocket write failed", slog.Any("session", c.ID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(m codec.ServerMessage) error {
	b, err := c.codec.EncodeServer(m)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
	return c.conn.WriteMessage(messageType, b)
}
