// Package types defines the JSON wire messages exchanged with clients over
// the websocket. Every message is a single flat envelope selected by Type;
// unused fields are omitted.
package types

import (
	"encoding/json"

	"github.com/arjenga/tower-backend/internal/game"
)

// Client -> server message types.
const (
	MsgCreateSession  = "createSession"
	MsgJoinSession    = "joinSession"
	MsgSetAnchor      = "setAnchor"
	MsgPlayerReady    = "playerReady"
	MsgMoveBlock      = "moveBlock"
	MsgReportCollapse = "reportCollapse"
)

// Server -> client message types.
const (
	MsgSessionCreated = "sessionCreated"
	MsgJoinedRoom     = "joinedRoom"
	MsgPlayerJoined   = "playerJoined"
	MsgPlayerLeft     = "playerLeft"
	MsgGameStarted    = "gameStarted"
	MsgBlockUpdated   = "blockUpdated"
	MsgTurnChanged    = "turnChanged"
	MsgOutcome        = "outcome"
	MsgRoomError      = "roomError"
)

// Outcome results.
const (
	ResultWon  = "won"
	ResultLost = "lost"
)

// roomError reasons.
const (
	ReasonNotFound = "notFound"
	ReasonFull     = "full"
)

type ClientMessage struct {
	Type        string           `json:"type"`
	RoomID      string           `json:"roomId,omitempty"`
	DisplayData json.RawMessage  `json:"displayData,omitempty"`
	BlockID     int              `json:"blockId,omitempty"`
	Position    *game.Vec3       `json:"position,omitempty"`
	Orientation *game.Quaternion `json:"orientation,omitempty"`
}

type ServerMessage struct {
	Type               string          `json:"type"`
	RoomID             string          `json:"roomId,omitempty"`
	ConnectionID       string          `json:"connectionId,omitempty"`
	DisplayData        json.RawMessage `json:"displayData,omitempty"`
	Snapshot           *RoomSnapshot   `json:"snapshot,omitempty"`
	Blocks             []game.Block    `json:"blocks,omitempty"`
	Block              *game.Block     `json:"block,omitempty"`
	ActiveConnectionID string          `json:"activeConnectionId,omitempty"`
	Result             string          `json:"result,omitempty"`
	Message            string          `json:"message,omitempty"`
	Reason             string          `json:"reason,omitempty"`
}

// RoomSnapshot is the authoritative room view sent to a joiner and exposed on
// the ops endpoint.
type RoomSnapshot struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerInfo `json:"players"`
	Blocks  []game.Block `json:"blocks"`
	Started bool         `json:"started"`
}

type PlayerInfo struct {
	ConnectionID string          `json:"connectionId"`
	DisplayData  json.RawMessage `json:"displayData,omitempty"`
	Ready        bool            `json:"ready"`
}
