// Package codec defines the JSON wire messages exchanged with
// participants over the websocket gateway.
package codec

import (
	"encoding/json"
	"time"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

// Client message types.
const (
	ClientAttach = "attach"
	ClientPlace  = "place"
)

// Server message types.
const (
	ServerRoomState    = "room"
	ServerPlayerJoined = "player_joined"
	ServerPlacement    = "placement"
	ServerTurn         = "turn"
	ServerComplete     = "complete"
	ServerError        = "error"
)

// Error codes surfaced to participants.
const (
	CodeNotYourTurn      = "not_your_turn"
	CodeCategoryFilled   = "category_filled"
	CodeRoomNotPlaying   = "room_not_playing"
	CodeInvalidCandidate = "invalid_candidate"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeInternal         = "internal"
)

// ClientMessage is the envelope read from a participant connection.
type ClientMessage struct {
	Type   string `json:"type"`
	Token  string `json:"token,omitempty"`
	RoomID string `json:"room_id,omitempty"`

	// place fields
	PartType string  `json:"part_type,omitempty"`
	PartID   string  `json:"part_id,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
}

// ServerMessage is the envelope written to participant connections.
type ServerMessage struct {
	Type      string          `json:"type"`
	TsMs      int64           `json:"ts_ms"`
	Room      *RoomState      `json:"room,omitempty"`
	Player    *PlayerState    `json:"player,omitempty"`
	Placement *PlacementState `json:"placement,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
}

type RoomState struct {
	ID                  string           `json:"id"`
	Status              string           `json:"status"`
	CurrentTurnPlayerID string           `json:"current_turn_player_id,omitempty"`
	TemplateID          string           `json:"template_id,omitempty"`
	Players             []PlayerState    `json:"players,omitempty"`
	Placements          []PlacementState `json:"placements,omitempty"`
	Complete            bool             `json:"complete"`
	Missing             []string         `json:"missing,omitempty"`
}

type PlayerState struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	TurnOrder   int    `json:"turn_order"`
}

type PlacementState struct {
	ID       string  `json:"id"`
	PlayerID string  `json:"player_id"`
	PartType string  `json:"part_type"`
	PartID   string  `json:"part_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func marshal(msg ServerMessage) []byte {
	msg.TsMs = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		// Message shapes are fixed; a marshal failure is a bug.
		panic(err)
	}
	return data
}

func PlayerToState(p fukuwarai.Player) PlayerState {
	return PlayerState{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		TurnOrder:   p.TurnOrder,
	}
}

func PlacementToState(p fukuwarai.Placement) PlacementState {
	return PlacementState{
		ID:       p.ID,
		PlayerID: p.PlayerID,
		PartType: p.PartType.String(),
		PartID:   p.PartID,
		X:        p.X,
		Y:        p.Y,
		Scale:    p.Scale,
		Rotation: p.Rotation,
	}
}

func SnapshotToState(snap fukuwarai.Snapshot) RoomState {
	state := RoomState{
		ID:                  snap.Room.ID,
		Status:              snap.Room.Status.String(),
		CurrentTurnPlayerID: snap.Room.CurrentTurnPlayerID,
		TemplateID:          snap.Room.TemplateID,
		Complete:            snap.Complete,
	}
	for _, p := range snap.Players {
		state.Players = append(state.Players, PlayerToState(p))
	}
	for _, p := range snap.Placements {
		state.Placements = append(state.Placements, PlacementToState(p))
	}
	for _, pt := range snap.Missing {
		state.Missing = append(state.Missing, pt.String())
	}
	return state
}

func RoomStateMessage(snap fukuwarai.Snapshot) []byte {
	state := SnapshotToState(snap)
	return marshal(ServerMessage{Type: ServerRoomState, Room: &state})
}

func PlayerJoinedMessage(p fukuwarai.Player) []byte {
	state := PlayerToState(p)
	return marshal(ServerMessage{Type: ServerPlayerJoined, Player: &state})
}

func PlacementMessage(p fukuwarai.Placement) []byte {
	state := PlacementToState(p)
	return marshal(ServerMessage{Type: ServerPlacement, Placement: &state})
}

func TurnMessage(room fukuwarai.Room) []byte {
	state := RoomState{
		ID:                  room.ID,
		Status:              room.Status.String(),
		CurrentTurnPlayerID: room.CurrentTurnPlayerID,
		TemplateID:          room.TemplateID,
	}
	return marshal(ServerMessage{Type: ServerTurn, Room: &state})
}

func CompleteMessage(snap fukuwarai.Snapshot) []byte {
	state := SnapshotToState(snap)
	return marshal(ServerMessage{Type: ServerComplete, Room: &state})
}

func ErrorMessage(code, message string) []byte {
	return marshal(ServerMessage{Type: ServerError, Error: &ErrorBody{Code: code, Message: message}})
}
