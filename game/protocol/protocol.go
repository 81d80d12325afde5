// Package protocol defines the JSON messages exchanged with game clients.
//
// Every frame is an envelope holding an event name and an optional payload:
//
//	{"event": "joinRoom", "data": "3f1c..."}
//	{"event": "playerMoved", "data": {"position": {"x": 10, "y": 20}}}
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Yquannn/multiplayer-phaser/game/room"
)

// Inbound event names.
const (
	EventCreateRoom = "createRoom"
	EventJoinRoom   = "joinRoom"
	EventMove       = "playerMoved"
)

// Outbound event names.
const (
	EventConnected          = "connected"
	EventRoomJoined         = "roomJoined"
	EventRoomNotFound       = "roomNotFound"
	EventPlayerLimitReached = "playerLimitReached"
	EventAlreadyInRoom      = "alreadyInRoom"
	EventCurrentPlayers     = "currentPlayers"
	EventPlayerCountUpdated = "playerCountUpdated"
	EventPlayerMoved        = "playerMoved"
	EventRoomClosed         = "roomClosed"
)

// Envelope is an inbound frame with its payload left undecoded.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Position is a pair of world coordinates as sent by clients.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MovePayload is the body of an inbound playerMoved event.
type MovePayload struct {
	Position *Position `json:"position"`
}

// MovedPayload is the body of an outbound playerMoved relay.
type MovedPayload struct {
	PlayerID string   `json:"playerId"`
	Position Position `json:"position"`
}

// Decode parses a raw frame into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope has no event name")
	}
	return env, nil
}

// RoomID extracts the room ID carried by a joinRoom payload.
func (e Envelope) RoomID() (string, error) {
	var id string
	if err := json.Unmarshal(e.Data, &id); err != nil {
		return "", fmt.Errorf("failed to decode room id: %w", err)
	}
	return id, nil
}

// Move extracts the coordinates carried by a playerMoved payload.
func (e Envelope) Move() (Position, error) {
	var p MovePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return Position{}, fmt.Errorf("failed to decode movement: %w", err)
	}
	if p.Position == nil {
		return Position{}, fmt.Errorf("movement has no position")
	}
	return *p.Position, nil
}

// Connected tells a client its own connection ID.
func Connected(connID string) Message {
	return Message{Event: EventConnected, Data: connID}
}

// RoomJoined confirms room membership.
func RoomJoined(roomID string) Message {
	return Message{Event: EventRoomJoined, Data: roomID}
}

// RoomNotFound reports a join against an unknown room.
func RoomNotFound(roomID string) Message {
	return Message{Event: EventRoomNotFound, Data: roomID}
}

// PlayerLimitReached reports a join against a full room.
func PlayerLimitReached() Message {
	return Message{Event: EventPlayerLimitReached}
}

// AlreadyInRoom reports a join refused because the client is seated elsewhere.
func AlreadyInRoom(roomID string) Message {
	return Message{Event: EventAlreadyInRoom, Data: roomID}
}

// CurrentPlayers carries the full occupant table of a room.
func CurrentPlayers(occupants map[string]room.PlayerState) Message {
	players := make(map[string]Position, len(occupants))
	for connID, p := range occupants {
		players[connID] = Position{X: p.X, Y: p.Y}
	}
	return Message{Event: EventCurrentPlayers, Data: players}
}

// PlayerCountUpdated carries the new occupant count of a room.
func PlayerCountUpdated(count int) Message {
	return Message{Event: EventPlayerCountUpdated, Data: count}
}

// PlayerMoved relays one occupant's movement to the others.
func PlayerMoved(playerID string, pos Position) Message {
	return Message{Event: EventPlayerMoved, Data: MovedPayload{PlayerID: playerID, Position: pos}}
}

// RoomClosed tells occupants their room was deleted by an operator.
func RoomClosed(roomID string) Message {
	return Message{Event: EventRoomClosed, Data: roomID}
}
