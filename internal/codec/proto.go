package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"speedhockey/internal/hockey"
	"speedhockey/internal/vmath"
)

// Proto is the binary codec for proto/speedhockey.proto. Unknown fields
// are skipped and map entries are written in key order.
type Proto struct{}

var marshalOptions = proto.MarshalOptions{Deterministic: true}

func (Proto) Name() string { return "proto" }
func (Proto) Binary() bool  { return true }

func (Proto) EncodeServer(m ServerMessage) ([]byte, error) {
	msg := dynamicpb.NewMessage(serverMsg)
	switch {
	case m.GameState != nil:
		set(msg, "game_state", protoreflect.ValueOfMessage(gameStateMessage(m.GameState)))
	case m.Welcome != nil:
		set(msg, "welcome", protoreflect.ValueOfMessage(welcomeMessage(m.Welcome)))
	default:
		return nil, malformed("empty server message")
	}
	return marshal(msg)
}

func (Proto) EncodeClient(m ClientMessage) ([]byte, error) {
	msg := dynamicpb.NewMessage(clientMsg)
	switch {
	case m.JoinTeam != nil:
		jt := dynamicpb.NewMessage(joinTeamMsg)
		set(jt, "team", teamValue(m.JoinTeam.Team))
		set(msg, "join_team", protoreflect.ValueOfMessage(jt))
	case m.UpdatePosition != nil:
		up := dynamicpb.NewMessage(updatePositionMsg)
		set(up, "position", protoreflect.ValueOfMessage(vectorMessage(m.UpdatePosition.Position)))
		set(msg, "update_position", protoreflect.ValueOfMessage(up))
	default:
		return nil, malformed("empty client message")
	}
	return marshal(msg)
}

func (Proto) DecodeClient(b []byte) (ClientMessage, error) {
	msg, err := unmarshal(b, clientMsg)
	if err != nil {
		return ClientMessage{}, err
	}
	// proto.Unmarshal keeps the last member of the oneof
	fd := msg.WhichOneof(clientMsg.Oneofs().ByName("payload"))
	if fd == nil {
		return ClientMessage{}, malformed("client message without a payload")
	}
	payload := msg.Get(fd).Message()
	switch fd.Name() {
	case "join_team":
		return ClientMessage{JoinTeam: &JoinTeam{Team: teamFrom(get(payload, "team"))}}, nil
	default:
		if !has(payload, "position") {
			return ClientMessage{}, malformed("update-position without a position")
		}
		pos := vectorFrom(get(payload, "position").Message())
		return ClientMessage{UpdatePosition: &UpdatePosition{Position: pos}}, nil
	}
}

func (Proto) DecodeServer(b []byte) (ServerMessage, error) {
	msg, err := unmarshal(b, serverMsg)
	if err != nil {
		return ServerMessage{}, err
	}
	fd := msg.WhichOneof(serverMsg.Oneofs().ByName("payload"))
	if fd == nil {
		return ServerMessage{}, malformed("server message without a payload")
	}
	payload := msg.Get(fd).Message()
	switch fd.Name() {
	case "game_state":
		return ServerMessage{GameState: gameStateFrom(payload)}, nil
	default:
		return ServerMessage{Welcome: welcomeFrom(payload)}, nil
	}
}

func marshal(m proto.Message) ([]byte, error) {
	b, err := marshalOptions.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("proto marshal: %w", err)
	}
	return b, nil
}

func unmarshal(b []byte, md protoreflect.MessageDescriptor) (*dynamicpb.Message, error) {
	m := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, malformed("%v", err)
	}
	return m, nil
}

func set(m protoreflect.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(name), v)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

func has(m protoreflect.Message, name protoreflect.Name) bool {
	return m.Has(m.Descriptor().Fields().ByName(name))
}

// enums are open in proto3, anything outside the schema is UNRECOGNIZED
func teamValue(t hockey.Team) protoreflect.Value {
	return protoreflect.ValueOfEnum(protoreflect.EnumNumber(t))
}

func teamFrom(v protoreflect.Value) hockey.Team {
	return hockey.TeamFromInt(int32(v.Enum()))
}

func vectorMessage(v vmath.Vector2) protoreflect.Message {
	m := dynamicpb.NewMessage(vector2Msg)
	set(m, "x", protoreflect.ValueOfFloat64(v.X))
	set(m, "y", protoreflect.ValueOfFloat64(v.Y))
	return m
}

func vectorFrom(m protoreflect.Message) vmath.Vector2 {
	return vmath.Vec(get(m, "x").Float(), get(m, "y").Float())
}

func playerMessage(p hockey.PlayerState) protoreflect.Message {
	m := dynamicpb.NewMessage(playerMsg)
	set(m, "position", protoreflect.ValueOfMessage(vectorMessage(p.Position)))
	set(m, "team", teamValue(p.Team))
	return m
}

func playerFrom(m protoreflect.Message) hockey.PlayerState {
	return hockey.PlayerState{
		Position: vectorFrom(get(m, "position").Message()),
		Team:     teamFrom(get(m, "team")),
	}
}

func gameStateMessage(s *hockey.MatchState) protoreflect.Message {
	m := dynamicpb.NewMessage(gameStateMsg)
	set(m, "puck_pos", protoreflect.ValueOfMessage(vectorMessage(s.PuckPosition)))
	players := m.Mutable(gameStateMsg.Fields().ByName("players")).Map()
	for id, p := range s.Players {
		players.Set(protoreflect.ValueOfString(string(id)).MapKey(), protoreflect.ValueOfMessage(playerMessage(p)))
	}
	set(m, "red_score", protoreflect.ValueOfInt32(int32(s.RedScore)))
	set(m, "blu_score", protoreflect.ValueOfInt32(int32(s.BluScore)))
	return m
}

func gameStateFrom(m protoreflect.Message) *hockey.MatchState {
	s := &hockey.MatchState{
		PuckPosition: vectorFrom(get(m, "puck_pos").Message()),
		Players:      make(map[hockey.SessionID]hockey.PlayerState),
		RedScore:     uint32(get(m, "red_score").Int()),
		BluScore:     uint32(get(m, "blu_score").Int()),
	}
	get(m, "players").Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		s.Players[hockey.SessionID(k.String())] = playerFrom(v.Message())
		return true
	})
	return s
}

func welcomeMessage(w *Welcome) protoreflect.Message {
	m := dynamicpb.NewMessage(welcomeMsg)
	set(m, "session_id", protoreflect.ValueOfString(w.SessionID))
	set(m, "arena_width", protoreflect.ValueOfFloat64(w.ArenaWidth))
	set(m, "arena_height", protoreflect.ValueOfFloat64(w.ArenaHeight))
	set(m, "tick_ms", protoreflect.ValueOfUint32(w.TickMs))
	return m
}

func welcomeFrom(m protoreflect.Message) *Welcome {
	return &Welcome{
		SessionID:   get(m, "session_id").String(),
		ArenaWidth:  get(m, "arena_width").Float(),
		ArenaHeight: get(m, "arena_height").Float(),
		TickMs:      uint32(get(m, "tick_ms").Uint()),
	}
}
