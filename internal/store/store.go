// Package store is the durable owner of record for rooms, players,
// placements and templates, and the sole ordering authority for
// category commit races. Three backends share one contract: in-memory
// (tests, dev), SQLite (single-binary deploys) and Postgres (shared
// deploys with LISTEN/NOTIFY change feeds).
package store

import (
	"context"
	"errors"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation is the store-level loser of a category
	// commit race: (room_id, part_type) already exists.
	ErrConstraintViolation = errors.New("placement constraint violation")
	// ErrTurnOrderTaken is the join-race loser: (room_id, turn_order)
	// already exists. Callers re-derive the seat count and retry.
	ErrTurnOrderTaken = errors.New("turn order already taken")
	// ErrRoomNotWaiting rejects a start transition on a room that has
	// already started or finished.
	ErrRoomNotWaiting = errors.New("room is not waiting")
	ErrClosed         = errors.New("store closed")
)

// PlacementInput is a placement before the store assigns identity and
// commit timestamp.
type PlacementInput struct {
	RoomID   string
	PlayerID string
	PartType fukuwarai.PartType
	PartID   string
	X        float64
	Y        float64
	Scale    float64
	Rotation float64
}

// Store is the remote-store contract consumed by the lobby and room
// runtimes. Every blocking call honors its context; writes either
// fully commit or leave no trace.
type Store interface {
	CreateRoom(ctx context.Context) (fukuwarai.Room, error)
	GetRoom(ctx context.Context, roomID string) (fukuwarai.Room, error)
	CreatePlayer(ctx context.Context, roomID, displayName string, turnOrder int, accountID uint64) (fukuwarai.Player, error)
	ListPlayers(ctx context.Context, roomID string) ([]fukuwarai.Player, error)
	InsertPlacement(ctx context.Context, in PlacementInput) (fukuwarai.Placement, error)
	ListPlacements(ctx context.Context, roomID string) ([]fukuwarai.Placement, error)
	UpdateRoomCurrentTurn(ctx context.Context, roomID, nextPlayerID string) (fukuwarai.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID string, status fukuwarai.RoomStatus) (fukuwarai.Room, error)
	SetRoomTemplate(ctx context.Context, roomID, templateID string) (fukuwarai.Room, error)
	// StartRoom flips waiting -> playing and hands the first turn to
	// firstPlayerID in a single room-row write.
	StartRoom(ctx context.Context, roomID, firstPlayerID string) (fukuwarai.Room, error)
	ListTemplates(ctx context.Context) ([]fukuwarai.Template, error)
	SeedTemplates(ctx context.Context, templates []fukuwarai.Template) error
	// SubscribeRoom opens a change feed scoped to one room. The feed
	// channel is closed when the subscription is cancelled or the
	// backend loses its upstream; consumers must reconcile on close.
	SubscribeRoom(roomID string) (*Subscription, error)
	Close() error
}

// EventType marks which row kind a feed event carries.
type EventType int

const (
	EventPlacementInserted EventType = iota
	EventRoomUpdated
	EventPlayerJoined
)

// Event is one change-feed delivery. At-least-once, no cross-reconnect
// ordering guarantee; consumers fold idempotently.
type Event struct {
	Type      EventType
	Room      fukuwarai.Room
	Player    fukuwarai.Player
	Placement fukuwarai.Placement
}
