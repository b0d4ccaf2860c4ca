package codec

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack carries the JSON envelope in MessagePack
type Msgpack struct{}

type msgpackEnvelope struct {
	MessageType string             `msgpack:"message_type"`
	Message     msgpack.RawMessage `msgpack:"message"`
}

func (Msgpack) Name() string { return "msgpack" }
func (Msgpack) Binary() bool  { return true }

func (c Msgpack) EncodeServer(m ServerMessage) ([]byte, error) { return encodeServerEnvelope(c, m) }
func (c Msgpack) DecodeServer(b []byte) (ServerMessage, error) { return decodeServerEnvelope(c, b) }
func (c Msgpack) EncodeClient(m ClientMessage) ([]byte, error) { return encodeClientEnvelope(c, m) }
func (c Msgpack) DecodeClient(b []byte) (ClientMessage, error) { return decodeClientEnvelope(c, b) }

func (Msgpack) wrap(messageType string, payload any) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&msgpackEnvelope{MessageType: messageType, Message: raw})
}

func (Msgpack) unwrap(b []byte) (string, func(any) error, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return "", nil, err
	}
	if env.MessageType == "" {
		return "", nil, errors.New("missing message_type")
	}
	return env.MessageType, func(v any) error {
		if len(env.Message) == 0 {
			return nil
		}
		return msgpack.Unmarshal(env.Message, v)
	}, nil
}

func (t *wireTeam) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return err
	}
	*t = wireTeam(teamFromAny(v))
	return nil
}
