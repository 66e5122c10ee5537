package models

import (
	"encoding/json"
	"fmt"
)

// Event names shared by server and clients. Both peers must agree on them.
const (
	// client -> server
	EventSetUsername    = "setUsername"
	EventPrivateMessage = "privateMessage"
	EventGetUserList    = "getUserList"

	// both directions
	EventMessage = "message"

	// server -> client
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventUserList   = "userList"
)

// Envelope is a single named event on the wire.
// Every WebSocket text frame carries exactly one envelope.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope for the given event
func NewEnvelope(event string, payload any) (Envelope, error) {
	if event == "" {
		return Envelope{}, fmt.Errorf("event name is required")
	}
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// EncodeEvent returns the wire frame for a named event
func EncodeEvent(event string, payload any) ([]byte, error) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses one wire frame
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	return json.Unmarshal(e.Data, v)
}
