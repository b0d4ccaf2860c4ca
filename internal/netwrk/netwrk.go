package netwrk

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"speedhockey/internal/codec"
	"speedhockey/internal/hockey"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

type Options struct {
	// Codec is used when the client asks for no known subprotocol
	Codec          codec.Codec
	AllowedOrigins []string
	SendQueueSize  int
	InputRateLimit int
	ReadLimit      int64
	WriteTimeout   time.Duration
}

// Server accepts WebSocket clients and bridges them to the engine
type Server struct {
	ctx      context.Context
	engine   *hockey.Engine
	opts     Options
	upgrader websocket.Upgrader

	wg sync.WaitGroup
}

// NewServer returns a server whose connections live until ctx is cancelled
func NewServer(ctx context.Context, engine *hockey.Engine, opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = codec.Proto{}
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 4
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Second
	}

	return &Server{
		ctx:    ctx,
		engine: engine,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:  originChecker(opts.AllowedOrigins),
			Subprotocols: codec.Subprotocols(),
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.HandleFunc("GET /status", s.HandleStatus)
	return mux
}

// Wait blocks until every connection has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := s.opts.Codec
	if p := conn.Subprotocol(); p != "" {
		if negotiated, ok := codec.FromSubprotocol(p); ok {
			c = negotiated
		}
	}

	client := newClient(s, hockey.SessionID(uuid.NewString()), conn, c)
	if err := s.engine.Connect(s.ctx, client.ID, client); err != nil {
		slog.Error("failed to register session", slog.Any("session", client.ID), slog.Any("error", err))
		conn.Close()
		return
	}
	slog.Debug("client connected", slog.Any("session", client.ID), slog.String("codec", c.Name()), slog.String("remote", r.RemoteAddr))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.allowCORS(w, r)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.allowCORS(w, r)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.engine.Stats())
}

func (s *Server) allowCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if len(s.opts.AllowedOrigins) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	if originAllowed(s.opts.AllowedOrigins, origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
}

// originChecker allows every origin when allowed is empty. Requests without
// an Origin header come from non-browser clients and are let through.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || originAllowed(allowed, origin) {
			return true
		}
		slog.Warn("rejected websocket connection", slog.String("origin", origin))
		return false
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
