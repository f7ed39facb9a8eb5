package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown frame type")
)

var eventDecoders = map[string]func([]byte) (Event, error){
	TypeMessageSent:    decodeEvent[MessageSent],
	TypeMessageNew:     decodeEvent[MessageNew],
	TypeMessageRead:    decodeEvent[MessageRead],
	TypeMessageEdited:  decodeEvent[MessageEdited],
	TypeMessageDeleted: decodeEvent[MessageDeleted],
	TypeTypingStart:    decodeEvent[TypingStarted],
	TypeTypingStop:     decodeEvent[TypingStopped],
	TypeError:          decodeEvent[ServerError],
}

var commandDecoders = map[string]func([]byte) (Command, error){
	TypeMessageSend:   decodeCommand[SendMessage],
	TypeMessageEdit:   decodeCommand[EditMessage],
	TypeMessageDelete: decodeCommand[DeleteMessage],
	TypeMessageRead:   decodeCommand[MarkRead],
	TypeTypingStart:   decodeCommand[StartTyping],
	TypeTypingStop:    decodeCommand[StopTyping],
}

// Encode renders an outbound command as an underscore-keyed JSON frame.
func Encode(cmd Command) ([]byte, error) {
	return encodeFrame(cmd.CommandType(), cmd)
}

// EncodeEvent renders a server event as an underscore-keyed JSON frame.
func EncodeEvent(ev Event) ([]byte, error) {
	return encodeFrame(ev.EventType(), ev)
}

// Decode parses an inbound server frame.
func Decode(data []byte) (Event, error) {
	typ, err := frameType(data)
	if err != nil {
		return nil, err
	}
	dec, ok := eventDecoders[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
	return dec(data)
}

// DecodeCommand parses a frame sent by a client.
func DecodeCommand(data []byte) (Command, error) {
	typ, err := frameType(data)
	if err != nil {
		return nil, err
	}
	dec, ok := commandDecoders[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
	return dec(data)
}

// MarshalSnake encodes v as JSON with every key converted by SnakeKey.
func MarshalSnake(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ToSnake(generic))
}

// UnmarshalSnake decodes underscore-keyed JSON into dst, whose json tags use
// the camel form.
func UnmarshalSnake(data []byte, dst any) error {
	var generic any
	if err := decodeNumbers(data, &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	camel, err := json.Marshal(ToCamel(generic))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(camel, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func frameType(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String {
		return "", fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return typ.String(), nil
}

func encodeFrame(typ string, v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	obj, ok := ToSnake(generic).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("frame %s: payload is not an object", typ)
	}
	obj["type"] = typ
	return json.Marshal(obj)
}

func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := decodeNumbers(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// decodeNumbers keeps numbers as json.Number so 64-bit ids survive untouched.
func decodeNumbers(data []byte, dst *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

func decodeEvent[T Event](data []byte) (Event, error) {
	var ev T
	if err := UnmarshalSnake(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeCommand[T Command](data []byte) (Command, error) {
	var cmd T
	if err := UnmarshalSnake(data, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
