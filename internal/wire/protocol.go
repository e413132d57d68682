// Package wire defines the JSON envelope exchanged between the console and a
// test harness, together with the message-type vocabulary and payload shapes.
//
// Every frame is a JSON object carrying a string "type" discriminant.
// Client-sent frames put their payload under "data"; most harness-sent frames
// are flat and carry their fields next to "type". Msg keeps the original frame
// so both shapes can be decoded, and so relayed frames survive a wrap/unwrap
// round trip byte for byte.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Outer session message types.
const (
	MsgInitDone       = "init_done"       // Snapshot delivered, session usable
	MsgInfo           = "info"            // Harness bookkeeping fields (name, box, plug, gps)
	MsgProcess        = "process"         // Supervised EV process state / command
	MsgForwardOpen    = "forward_open"    // Client -> harness: start relaying
	MsgForwardSuccess = "forward_success" // Harness -> client: relay usable
	MsgForward        = "forward"         // One relayed frame, either direction
	MsgForwardFail    = "forward_fail"    // Harness -> client: relay ended
)

// Inner session message types.
const (
	MsgInitTasks   = "init_tasks" // Task forest snapshot
	MsgTask        = "task"       // Single task state overwrite
	MsgWaiterStart = "waiter_start"
	MsgWaiterDone  = "waiter_done"
	MsgWaiterPlug  = "waiter_plug"
)

// Status display message types. Their payloads are opaque to the core and only
// interpreted by display adapters.
const (
	MsgBasicSignaling = "basic_signaling"
	MsgSLACState      = "SLAC_State"
	MsgSLACResult     = "SLAC_Result"
	MsgSDPResult      = "SDP_Result"
	MsgProto          = "Proto"
	MsgV2G            = "V2G"
)

// StatusTypes lists the status display message types in display order.
var StatusTypes = []string{
	MsgBasicSignaling,
	MsgSLACState,
	MsgSLACResult,
	MsgSDPResult,
	MsgProto,
	MsgV2G,
}

// IsStatusType reports whether msgType is one of the opaque status displays.
func IsStatusType(msgType string) bool {
	for _, t := range StatusTypes {
		if t == msgType {
			return true
		}
	}
	return false
}

// ErrMissingType is returned when a frame has no usable "type" field.
var ErrMissingType = errors.New("wire: frame has no type")

// Msg is one envelope. Type selects the schema; Data holds the "data" member
// when the frame has one.
type Msg struct {
	Type string
	Data json.RawMessage

	frame []byte
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeMsg creates a message from a type and payload. A nil payload produces
// a frame without a "data" member.
func EncodeMsg(msgType string, payload any) (*Msg, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		data = raw
	}
	return &Msg{Type: msgType, Data: data}, nil
}

// MustEncode is EncodeMsg for payloads that cannot fail to marshal.
func MustEncode(msgType string, payload any) *Msg {
	msg, err := EncodeMsg(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// EncodeFlat creates a message whose payload fields sit next to "type" in the
// frame, the shape the harness uses for state pushes. payload must marshal to
// a JSON object; its own "type" member, if any, is overwritten.
func EncodeFlat(msgType string, payload any) (*Msg, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encoding %s payload: not an object: %w", msgType, err)
		}
	}
	typ, _ := json.Marshal(msgType)
	fields["type"] = typ
	frame, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return DecodeMsg(frame)
}

// DecodeMsg parses one frame. The frame is copied and kept verbatim.
func DecodeMsg(frame []byte) (*Msg, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &Msg{
		Type:  env.Type,
		Data:  env.Data,
		frame: bytes.Clone(frame),
	}, nil
}

// Frame returns the wire bytes of the message: the received frame when the
// message was decoded, otherwise {"type":...,"data":...}.
func (m *Msg) Frame() ([]byte, error) {
	if m.frame != nil {
		return m.frame, nil
	}
	return json.Marshal(envelope{Type: m.Type, Data: m.Data})
}

// MarshalJSON implements json.Marshaler so a Msg can be nested as a payload.
func (m *Msg) MarshalJSON() ([]byte, error) {
	return m.Frame()
}

// Wrap returns the outer "forward" envelope carrying inner verbatim.
func Wrap(inner *Msg) (*Msg, error) {
	frame, err := inner.Frame()
	if err != nil {
		return nil, err
	}
	return &Msg{Type: MsgForward, Data: frame}, nil
}

// Unwrap extracts the relayed frame of a "forward" envelope.
func Unwrap(msg *Msg) (*Msg, error) {
	if msg.Type != MsgForward {
		return nil, fmt.Errorf("unwrap: message type %q is not %q", msg.Type, MsgForward)
	}
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("unwrap: forward without data")
	}
	return DecodeMsg(msg.Data)
}

// DecodeData unmarshals the Data field of a Msg into the target struct.
func DecodeData[T any](msg *Msg) (*T, error) {
	var v T
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("decoding %s: no data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", msg.Type, err)
	}
	return &v, nil
}

// DecodeFrame unmarshals the whole frame of a flat message into the target.
func DecodeFrame[T any](msg *Msg) (*T, error) {
	frame, err := msg.Frame()
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(frame, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", msg.Type, err)
	}
	return &v, nil
}
