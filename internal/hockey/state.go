package hockey

import (
	"maps"
	"strings"

	"speedhockey/internal/vmath"
)

// SessionID identifies a connected client for the lifetime of its connection
type SessionID string

type Team int32

const (
	TeamUnrecognized Team = -1
	TeamSpectator    Team = 0
	TeamRed          Team = 1
	TeamBlu          Team = 2
)

func (t Team) String() string {
	switch t {
	case TeamSpectator:
		return "SPECTATOR"
	case TeamRed:
		return "RED"
	case TeamBlu:
		return "BLU"
	default:
		return "UNRECOGNIZED"
	}
}

// Valid reports whether t is one of the known teams
func (t Team) Valid() bool {
	return t == TeamSpectator || t == TeamRed || t == TeamBlu
}

// Playing reports whether sessions on t control a paddle
func (t Team) Playing() bool {
	return t == TeamRed || t == TeamBlu
}

// TeamFromInt maps a decoded enum value to a Team, unknown values map to
// TeamUnrecognized.
func TeamFromInt(v int32) Team {
	t := Team(v)
	if !t.Valid() {
		return TeamUnrecognized
	}
	return t
}

// TeamFromName maps a team name, in any case, to a Team
func TeamFromName(name string) Team {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SPECTATOR":
		return TeamSpectator
	case "RED":
		return TeamRed
	case "BLU", "BLUE":
		return TeamBlu
	default:
		return TeamUnrecognized
	}
}

type PlayerState struct {
	Position vmath.Vector2
	Team     Team
}

// MatchState is the payload broadcast every tick. The engine builds a new
// value each tick and never mutates one it has handed out.
type MatchState struct {
	Tick         uint64
	PuckPosition vmath.Vector2
	Players      map[SessionID]PlayerState
	RedScore     uint32
	BluScore     uint32
}

func (m MatchState) Clone() MatchState {
	c := m
	c.Players = maps.Clone(m.Players)
	if c.Players == nil {
		c.Players = make(map[SessionID]PlayerState)
	}
	return c
}
