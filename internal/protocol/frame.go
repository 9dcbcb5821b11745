package protocol

import (
	"encoding/json"
	"fmt"
)

// Type is the frame discriminant carried in the "type" field.
type Type string

const (
	TypeConnectAck    Type = "connectAck"
	TypeChatRequest   Type = "chatRequest"
	TypeChatResponse  Type = "chatResponse"
	TypeChatStream    Type = "chatStream"
	TypeChatStreamEnd Type = "chatStreamEnd"
	TypeError         Type = "error"
	TypePing          Type = "ping"
	TypePong          Type = "pong"

	// TypeOpaque marks a frame whose payload could not be parsed. It never
	// appears on the wire; it exists so unparseable input still reaches
	// diagnostic handlers instead of being dropped.
	TypeOpaque Type = "opaque"
)

// Known reports whether t is one of the protocol's wire types.
func (t Type) Known() bool {
	switch t {
	case TypeConnectAck, TypeChatRequest, TypeChatResponse,
		TypeChatStream, TypeChatStreamEnd, TypeError, TypePing, TypePong:
		return true
	}
	return false
}

// Payload carries the type-specific frame body. All wire payloads are
// subsets of this shape; fields not used by a given type stay empty.
type Payload struct {
	Message   string `json:"message,omitempty"`
	ModelID   string `json:"modelId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Frame is one unit of communication. Frames are immutable once constructed.
type Frame struct {
	Type Type
	Data Payload

	// Raw holds the original bytes for opaque and unknown-type frames.
	Raw []byte
}

// envelope is the wire representation of a frame.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Parse converts raw inbound bytes into a Frame. It never returns an error:
// malformed envelopes and undecodable payloads come back as opaque frames,
// and unrecognized type values keep their discriminant so wildcard handlers
// can inspect them.
func Parse(raw []byte) Frame {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return Frame{Type: TypeOpaque, Raw: raw}
	}

	t := Type(env.Type)
	if !t.Known() {
		return Frame{Type: t, Raw: raw}
	}

	var data Payload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Frame{Type: TypeOpaque, Raw: raw}
		}
	}

	return Frame{Type: t, Data: data}
}

// Encode serializes a frame for transmission. Opaque frames are not
// encodable; they only exist on the inbound path.
func Encode(f Frame) ([]byte, error) {
	if f.Type == TypeOpaque {
		return nil, fmt.Errorf("cannot encode opaque frame")
	}

	data, err := json.Marshal(f.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame payload: %w", err)
	}

	return json.Marshal(envelope{Type: string(f.Type), Data: data})
}

// ChatRequest builds an outbound chat request frame.
func ChatRequest(message, modelID, sessionID string) Frame {
	return Frame{
		Type: TypeChatRequest,
		Data: Payload{Message: message, ModelID: modelID, SessionID: sessionID},
	}
}

// Ping builds a heartbeat probe frame.
func Ping() Frame {
	return Frame{Type: TypePing}
}

// Pong builds a heartbeat reply frame.
func Pong() Frame {
	return Frame{Type: TypePong}
}
