// Package codec turns the game messages into WebSocket frames. Each codec
// is selected by a WebSocket subprotocol of the form "speedhockey.<name>".
package codec

import (
	"errors"
	"fmt"
	"strings"

	"speedhockey/internal/hockey"
	"speedhockey/internal/vmath"
)

var (
	ErrUnknownCodec = errors.New("unknown codec")
	ErrMalformed    = errors.New("malformed message")
)

const SubprotocolPrefix = "speedhockey."

// Message types of the JSON and msgpack envelopes
const (
	TypeJoinTeam        = "join-team"
	TypeUpdatePosition  = "update-position"
	TypeUpdateGameState = "update-game-state"
	TypeWelcome         = "welcome"
)

type JoinTeam struct {
	Team hockey.Team
}

type UpdatePosition struct {
	Position vmath.Vector2
}

// ClientMessage holds exactly one of its fields
type ClientMessage struct {
	JoinTeam       *JoinTeam
	UpdatePosition *UpdatePosition
}

// Welcome is sent once after the upgrade so the client knows which player
// entry is its own.
type Welcome struct {
	SessionID   string
	ArenaWidth  float64
	ArenaHeight float64
	TickMs      uint32
}

// ServerMessage holds exactly one of its fields
type ServerMessage struct {
	GameState *hockey.MatchState
	Welcome   *Welcome
}

type Codec interface {
	Name() string
	// Binary reports whether frames go out as binary or text messages
	Binary() bool

	EncodeServer(m ServerMessage) ([]byte, error)
	DecodeServer(b []byte) (ServerMessage, error)
	EncodeClient(m ClientMessage) ([]byte, error)
	DecodeClient(b []byte) (ClientMessage, error)
}

// registered in order of preference
var codecs = []Codec{Proto{}, JSON{}, Msgpack{}}

func ByName(name string) (Codec, error) {
	for _, c := range codecs {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

func Subprotocol(c Codec) string {
	return SubprotocolPrefix + c.Name()
}

// Subprotocols lists every supported subprotocol, preferred first
func Subprotocols() []string {
	out := make([]string, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, Subprotocol(c))
	}
	return out
}

// FromSubprotocol maps a negotiated subprotocol back to its codec
func FromSubprotocol(p string) (Codec, bool) {
	name, ok := strings.CutPrefix(p, SubprotocolPrefix)
	if !ok {
		return nil, false
	}
	c, err := ByName(name)
	return c, err == nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
