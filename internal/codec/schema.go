package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Message descriptors for proto/speedhockey.proto.
var (
	schema = loadSchema()

	vector2Msg        = schema.Messages().ByName("Vector2")
	playerMsg         = schema.Messages().ByName("Player")
	gameStateMsg      = schema.Messages().ByName("GameState")
	joinTeamMsg       = schema.Messages().ByName("JoinTeam")
	updatePositionMsg = schema.Messages().ByName("UpdatePosition")
	welcomeMsg        = schema.Messages().ByName("Welcome")
	clientMsg         = schema.Messages().ByName("ClientMessage")
	serverMsg         = schema.Messages().ByName("ServerMessage")
)

func loadSchema() protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(schemaFile(), nil)
	if err != nil {
		panic("codec: invalid speedhockey schema: " + err.Error())
	}
	return fd
}

// schemaFile must stay in step with proto/speedhockey.proto
func schemaFile() *descriptorpb.FileDescriptorProto {
	const (
		double  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		int32T  = descriptorpb.FieldDescriptorProto_TYPE_INT32
		uint32T = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		str     = descriptorpb.FieldDescriptorProto_TYPE_STRING
		enum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		msg     = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	players := field("players", 2, msg, "GameState.PlayersEntry")
	players.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("speedhockey.proto"),
		Package: proto.String("speedhockey"),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{GoPackage: proto.String("speedhockey/internal/codec")},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Team"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("SPECTATOR"), Number: proto.Int32(0)},
				{Name: proto.String("RED"), Number: proto.Int32(1)},
				{Name: proto.String("BLU"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Vector2", field("x", 1, double, ""), field("y", 2, double, "")),
			message("Player", field("position", 1, msg, "Vector2"), field("team", 2, enum, "Team")),
			{
				Name: proto.String("GameState"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("puck_pos", 1, msg, "Vector2"),
					players,
					field("red_score", 3, int32T, ""),
					field("blu_score", 4, int32T, ""),
				},
				NestedType: []*descriptorpb.DescriptorProto{{
					Name:    proto.String("PlayersEntry"),
					Field:   []*descriptorpb.FieldDescriptorProto{field("key", 1, str, ""), field("value", 2, msg, "Player")},
					Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
				}},
			},
			message("JoinTeam", field("team", 1, enum, "Team")),
			message("UpdatePosition", field("position", 1, msg, "Vector2")),
			message("Welcome",
				field("session_id", 1, str, ""),
				field("arena_width", 2, double, ""),
				field("arena_height", 3, double, ""),
				field("tick_ms", 4, uint32T, ""),
			),
			oneof("ClientMessage", field("join_team", 1, msg, "JoinTeam"), field("update_position", 2, msg, "UpdatePosition")),
			oneof("ServerMessage", field("game_state", 1, msg, "GameState"), field("welcome", 2, msg, "Welcome")),
		},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// oneof declares a message whose fields all belong to a single payload oneof
func oneof(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	for _, f := range fields {
		f.OneofIndex = proto.Int32(0)
	}
	m := message(name, fields...)
	m.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("payload")}}
	return m
}

func field(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(".speedhockey." + typeName)
	}
	return f
}
