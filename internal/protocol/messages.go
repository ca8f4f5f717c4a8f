package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

// Client → service.
const (
	TypeHeartbeat     MessageType = "heartbeat"
	TypeSessionCheck  MessageType = "session-check"
	TypeCreateSession MessageType = "create-session"
	TypeStartSession  MessageType = "start-session"
	TypeEndSession    MessageType = "end-session"
)

// Service → client.
const (
	TypeSessionExists   MessageType = "sessionExists"
	TypeNoSessionExists MessageType = "noSessionExists"
	TypeSessionCreated  MessageType = "sessionCreated"
	TypeSessionStarted  MessageType = "sessionStarted"
	TypeSessionEnded    MessageType = "sessionEnded"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is a request sent by a focus client. None of the client
// variants carry fields beyond the discriminator.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// ServerEvent is a notification pushed by the session-tracking service.
// SessionID is informational and may be empty.
type ServerEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

func Heartbeat() ClientMessage     { return ClientMessage{Type: TypeHeartbeat} }
func SessionCheck() ClientMessage  { return ClientMessage{Type: TypeSessionCheck} }
func CreateSession() ClientMessage { return ClientMessage{Type: TypeCreateSession} }
func StartSession() ClientMessage  { return ClientMessage{Type: TypeStartSession} }
func EndSession() ClientMessage    { return ClientMessage{Type: TypeEndSession} }

func IsClientType(t MessageType) bool {
	switch t {
	case TypeHeartbeat, TypeSessionCheck, TypeCreateSession, TypeStartSession, TypeEndSession:
		return true
	default:
		return false
	}
}

func IsServerType(t MessageType) bool {
	switch t {
	case TypeSessionExists, TypeNoSessionExists, TypeSessionCreated, TypeSessionStarted, TypeSessionEnded:
		return true
	default:
		return false
	}
}

// ParseServerEvent decodes an inbound frame on the client side. Unknown types
// yield ErrUnsupportedType so callers can ignore them without treating the
// frame as malformed.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, errors.New("invalid envelope: missing type")
	}
	if !IsServerType(ev.Type) {
		return ev, ErrUnsupportedType
	}
	return ev, nil
}

// ParseClientMessage decodes an inbound frame on the service side.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if !IsClientType(env.Type) {
		return ClientMessage{}, ErrUnsupportedType
	}
	return ClientMessage{Type: env.Type}, nil
}
