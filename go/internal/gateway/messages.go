package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/world"
)

// ClientMessageType is the closed set of requests a client may send.
type ClientMessageType string

const (
	ClientMessageJoin  ClientMessageType = "join"
	ClientMessageLeave ClientMessageType = "leave"
	ClientMessageVote  ClientMessageType = "vote"
	ClientMessageState ClientMessageType = "state"
)

// ClientMessage is a request received over the websocket
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	Mode      models.Mode       `json:"mode,omitempty"`
	Arena     string            `json:"arena,omitempty"`
	Position  *models.Position  `json:"position,omitempty"`
	Inventory json.RawMessage   `json:"inventory,omitempty"`
}

// ParseClientMessage decodes and validates a client frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Type {
	case ClientMessageJoin:
		if !msg.Mode.Valid() {
			return ClientMessage{}, fmt.Errorf("join: unknown mode %q", msg.Mode)
		}
	case ClientMessageVote:
		if msg.Arena == "" {
			return ClientMessage{}, fmt.Errorf("vote: arena is required")
		}
	case ClientMessageState:
		if msg.Position == nil {
			return ClientMessage{}, fmt.Errorf("state: position is required")
		}
	case ClientMessageLeave:
	default:
		return ClientMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

// ServerMessageType identifies a message pushed to clients.
type ServerMessageType string

const (
	ServerMessageNotify   ServerMessageType = "notify"
	ServerMessageRelocate ServerMessageType = "relocate"
	ServerMessageReset    ServerMessageType = "reset"
	ServerMessageRestore  ServerMessageType = "restore"
	ServerMessageError    ServerMessageType = "error"
	ServerMessageEvent    ServerMessageType = "event"
)

// ServerMessage is the envelope of everything written to a websocket
type ServerMessage struct {
	Type     ServerMessageType `json:"type"`
	Key      string            `json:"key,omitempty"`
	Params   map[string]any    `json:"params,omitempty"`
	Position *models.Position  `json:"position,omitempty"`
	State    *models.Snapshot  `json:"state,omitempty"`
	Event    *events.Event     `json:"event,omitempty"`
}

func commandMessage(cmd world.Command) ServerMessage {
	msg := ServerMessage{Position: cmd.Position, State: cmd.State}
	switch cmd.Type {
	case world.CommandRelocate:
		msg.Type = ServerMessageRelocate
	case world.CommandReset:
		msg.Type = ServerMessageReset
	case world.CommandRestore:
		msg.Type = ServerMessageRestore
	}
	return msg
}

// Error keys sent in error messages.
const (
	ErrorKeyInvalidMessage = "errors.invalid_message"
	ErrorKeyUnknownMode    = "errors.unknown_mode"
	ErrorKeyInvalidVote    = "errors.invalid_vote"
	ErrorKeyInternal       = "errors.internal"
)
