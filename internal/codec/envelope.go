package codec

import (
	"strings"

	"speedhockey/internal/hockey"
	"speedhockey/internal/vmath"
)

// envelopeFormat is a self-describing encoding that wraps every payload as
// {"message_type": ..., "message": ...}.
type envelopeFormat interface {
	wrap(messageType string, payload any) ([]byte, error)
	// unwrap returns the message type and a decoder for the raw payload
	unwrap(b []byte) (string, func(any) error, error)
}

type wireVector struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func toWireVector(v vmath.Vector2) wireVector {
	return wireVector{X: v.X, Y: v.Y}
}

func (v wireVector) vector() vmath.Vector2 {
	return vmath.Vec(v.X, v.Y)
}

type wirePlayer struct {
	Position wireVector `json:"position" msgpack:"position"`
	Team     wireTeam   `json:"team" msgpack:"team"`
}

type wireGameState struct {
	PuckPos  wireVector            `json:"puckPos" msgpack:"puckPos"`
	Players  map[string]wirePlayer `json:"players" msgpack:"players"`
	RedScore uint32                `json:"redScore" msgpack:"redScore"`
	BluScore uint32                `json:"bluScore" msgpack:"bluScore"`
}

type wireJoinTeam struct {
	Team wireTeam `json:"team" msgpack:"team"`
}

type wireUpdatePosition struct {
	Position *wireVector `json:"position" msgpack:"position"`
}

type wireWelcome struct {
	SessionID   string  `json:"sessionId" msgpack:"sessionId"`
	ArenaWidth  float64 `json:"arenaWidth" msgpack:"arenaWidth"`
	ArenaHeight float64 `json:"arenaHeight" msgpack:"arenaHeight"`
	TickMs      uint32  `json:"tickMs" msgpack:"tickMs"`
}

func toWireState(s *hockey.MatchState) wireGameState {
	w := wireGameState{
		PuckPos:  toWireVector(s.PuckPosition),
		Players:  make(map[string]wirePlayer, len(s.Players)),
		RedScore: s.RedScore,
		BluScore: s.BluScore,
	}
	for id, p := range s.Players {
		w.Players[string(id)] = wirePlayer{Position: toWireVector(p.Position), Team: wireTeam(p.Team)}
	}
	return w
}

func (w wireGameState) state() *hockey.MatchState {
	s := &hockey.MatchState{
		PuckPosition: w.PuckPos.vector(),
		Players:      make(map[hockey.SessionID]hockey.PlayerState, len(w.Players)),
		RedScore:     w.RedScore,
		BluScore:     w.BluScore,
	}
	for id, p := range w.Players {
		s.Players[hockey.SessionID(id)] = hockey.PlayerState{Position: p.Position.vector(), Team: hockey.Team(p.Team)}
	}
	return s
}

func encodeServerEnvelope(f envelopeFormat, m ServerMessage) ([]byte, error) {
	switch {
	case m.GameState != nil:
		return f.wrap(TypeUpdateGameState, toWireState(m.GameState))
	case m.Welcome != nil:
		return f.wrap(TypeWelcome, wireWelcome{
			SessionID:   m.Welcome.SessionID,
			ArenaWidth:  m.Welcome.ArenaWidth,
			ArenaHeight: m.Welcome.ArenaHeight,
			TickMs:      m.Welcome.TickMs,
		})
	default:
		return nil, malformed("empty server message")
	}
}

func encodeClientEnvelope(f envelopeFormat, m ClientMessage) ([]byte, error) {
	switch {
	case m.JoinTeam != nil:
		return f.wrap(TypeJoinTeam, wireJoinTeam{Team: wireTeam(m.JoinTeam.Team)})
	case m.UpdatePosition != nil:
		v := toWireVector(m.UpdatePosition.Position)
		return f.wrap(TypeUpdatePosition, wireUpdatePosition{Position: &v})
	default:
		return nil, malformed("empty client message")
	}
}

func decodeClientEnvelope(f envelopeFormat, b []byte) (ClientMessage, error) {
	typ, decode, err := f.unwrap(b)
	if err != nil {
		return ClientMessage{}, malformed("%v", err)
	}

	switch strings.ToLower(typ) {
	case TypeJoinTeam:
		var p wireJoinTeam
		if err := decode(&p); err != nil {
			return ClientMessage{}, malformed("%s: %v", typ, err)
		}
		return ClientMessage{JoinTeam: &JoinTeam{Team: hockey.Team(p.Team)}}, nil
	case TypeUpdatePosition:
		var p wireUpdatePosition
		if err := decode(&p); err != nil {
			return ClientMessage{}, malformed("%s: %v", typ, err)
		}
		if p.Position == nil {
			return ClientMessage{}, malformed("%s without a position", typ)
		}
		return ClientMessage{UpdatePosition: &UpdatePosition{Position: p.Position.vector()}}, nil
	default:
		return ClientMessage{}, malformed("unknown message type %q", typ)
	}
}

func decodeServerEnvelope(f envelopeFormat, b []byte) (ServerMessage, error) {
	typ, decode, err := f.unwrap(b)
	if err != nil {
		return ServerMessage{}, malformed("%v", err)
	}

	switch strings.ToLower(typ) {
	case TypeUpdateGameState:
		var p wireGameState
		if err := decode(&p); err != nil {
			return ServerMessage{}, malformed("%s: %v", typ, err)
		}
		return ServerMessage{GameState: p.state()}, nil
	case TypeWelcome:
		var p wireWelcome
		if err := decode(&p); err != nil {
			return ServerMessage{}, malformed("%s: %v", typ, err)
		}
		return ServerMessage{Welcome: &Welcome{
			SessionID:   p.SessionID,
			ArenaWidth:  p.ArenaWidth,
			ArenaHeight: p.ArenaHeight,
			TickMs:      p.TickMs,
		}}, nil
	default:
		return ServerMessage{}, malformed("unknown message type %q", typ)
	}
}
