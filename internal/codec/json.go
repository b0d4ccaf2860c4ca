package codec

import (
	"encoding/json"
	"errors"
	"math"

	"speedhockey/internal/hockey"
)

// JSON is the text codec. Every frame is an envelope naming the event, the
// same shape the lobby messages used.
type JSON struct{}

type jsonEnvelope struct {
	MessageType string          `json:"message_type"`
	Message     json.RawMessage `json:"message"`
}

func (JSON) Name() string { return "json" }
func (JSON) Binary() bool  { return false }

func (c JSON) EncodeServer(m ServerMessage) ([]byte, error) { return encodeServerEnvelope(c, m) }
func (c JSON) DecodeServer(b []byte) (ServerMessage, error) { return decodeServerEnvelope(c, b) }
func (c JSON) EncodeClient(m ClientMessage) ([]byte, error) { return encodeClientEnvelope(c, m) }
func (c JSON) DecodeClient(b []byte) (ClientMessage, error) { return decodeClientEnvelope(c, b) }

func (JSON) wrap(messageType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{MessageType: messageType, Message: raw})
}

func (JSON) unwrap(b []byte) (string, func(any) error, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, err
	}
	if env.MessageType == "" {
		return "", nil, errors.New("missing message_type")
	}
	return env.MessageType, func(v any) error {
		if len(env.Message) == 0 {
			return nil
		}
		return json.Unmarshal(env.Message, v)
	}, nil
}

// wireTeam is sent as the enum number and accepted as a number or a name.
// Values outside the enum decode to UNRECOGNIZED.
type wireTeam hockey.Team

func (t *wireTeam) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = wireTeam(teamFromAny(v))
	return nil
}

func teamFromAny(v any) hockey.Team {
	switch v := v.(type) {
	case nil:
		return hockey.TeamSpectator
	case string:
		return hockey.TeamFromName(v)
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return hockey.TeamUnrecognized
		}
		return hockey.TeamFromInt(int32(v))
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return hockey.TeamUnrecognized
		}
		return hockey.TeamFromInt(int32(v))
	case uint64:
		if v > math.MaxInt32 {
			return hockey.TeamUnrecognized
		}
		return hockey.TeamFromInt(int32(v))
	default:
		return hockey.TeamUnrecognized
	}
}
