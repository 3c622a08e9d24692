package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

// MemoryStore keeps all rows in process. It enforces the same
// uniqueness constraints as the SQL backends so race outcomes are
// identical across modes.
type MemoryStore struct {
	mu         sync.Mutex
	rooms      map[string]fukuwarai.Room
	players    map[string][]fukuwarai.Player    // roomID -> seats
	placements map[string][]fukuwarai.Placement // roomID -> commits
	templates  []fukuwarai.Template
	closed     bool

	hub *hub

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:      make(map[string]fukuwarai.Room),
		players:    make(map[string][]fukuwarai.Player),
		placements: make(map[string][]fukuwarai.Placement),
		hub:        newHub(),
		now:        time.Now,
	}
}

func (m *MemoryStore) CreateRoom(ctx context.Context) (fukuwarai.Room, error) {
	if err := ctx.Err(); err != nil {
		return fukuwarai.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fukuwarai.Room{}, ErrClosed
	}

	room := fukuwarai.Room{
		ID:        uuid.NewString(),
		Status:    fukuwarai.RoomStatusWaiting,
		Version:   1,
		CreatedAt: m.now().UTC(),
	}
	m.rooms[room.ID] = room
	return room, nil
}

func (m *MemoryStore) GetRoom(ctx context.Context, roomID string) (fukuwarai.Room, error) {
	if err := ctx.Err(); err != nil {
		return fukuwarai.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return fukuwarai.Room{}, ErrNotFound
	}
	return room, nil
}

func (m *MemoryStore) CreatePlayer(ctx context.Context, roomID, displayName string, turnOrder int, accountID uint64) (fukuwarai.Player, error) {
	if err := ctx.Err(); err != nil {
		return fukuwarai.Player{}, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fukuwarai.Player{}, ErrClosed
	}
	if _, ok := m.rooms[roomID]; !ok {
		m.mu.Unlock()
		return fukuwarai.Player{}, ErrNotFound
	}
	for _, existing := range m.players[roomID] {
		if existing.TurnOrder == turnOrder {
			m.mu.Unlock()
			return fukuwarai.Player{}, ErrTurnOrderTaken
		}
	}

	player := fukuwarai.Player{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		DisplayName: displayName,
		TurnOrder:   turnOrder,
		AccountID:   accountID,
		CreatedAt:   m.now().UTC(),
	}
	m.players[roomID] = append(m.players[roomID], player)
	m.mu.Unlock()

	m.hub.publish(roomID, Event{Type: EventPlayerJoined, Player: player})
	return player, nil
}

func (m *MemoryStore) ListPlayers(ctx context.Context, roomID string) ([]fukuwarai.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	players := append([]fukuwarai.Player{}, m.players[roomID]...)
	sort.Slice(players, func(i, j int) bool { return players[i].TurnOrder < players[j].TurnOrder })
	return players, nil
}

func (m *MemoryStore) InsertPlacement(ctx context.Context, in PlacementInput) (fukuwarai.Placement, error) {
	if err := ctx.Err(); err != nil {
		return fukuwarai.Placement{}, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fukuwarai.Placement{}, ErrClosed
	}
	if _, ok := m.rooms[in.RoomID]; !ok {
		m.mu.Unlock()
		return fukuwarai.Placement{}, ErrNotFound
	}
	// The one-placement-per-category invariant is decided here,
	// atomically, exactly like the SQL uniqueness constraint.
	for _, existing := range m.placements[in.RoomID] {
		if existing.PartType == in.PartType {
			m.mu.Unlock()
			return fukuwarai.Placement{}, ErrConstraintViolation
		}
	}

	placement := fukuwarai.Placement{
		ID:       uuid.NewString(),
		RoomID:   in.RoomID,
		PlayerID: in.PlayerID,
		PartType: in.PartType,
		PartID:   in.PartID,
		X:        in.X,
		Y:        in.Y,
		Scale:    in.Scale,
		Rotation: in.Rotation,
		PlacedAt: m.now().UTC(),
	}
	m.placements[in.RoomID] = append(m.placements[in.RoomID], placement)
	m.mu.Unlock()

	m.hub.publish(in.RoomID, Event{Type: EventPlacementInserted, Placement: placement})
	return placement, nil
}

func (m *MemoryStore) ListPlacements(ctx context.Context, roomID string) ([]fukuwarai.Placement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	placements := append([]fukuwarai.Placement{}, m.placements[roomID]...)
	sort.Slice(placements, func(i, j int) bool {
		if !placements[i].PlacedAt.Equal(placements[j].PlacedAt) {
			return placements[i].PlacedAt.Before(placements[j].PlacedAt)
		}
		return placements[i].ID < placements[j].ID
	})
	return placements, nil
}

func (m *MemoryStore) UpdateRoomCurrentTurn(ctx context.Context, roomID, nextPlayerID string) (fukuwarai.Room, error) {
	return m.updateRoom(ctx, roomID, func(room *fukuwarai.Room) error {
		room.CurrentTurnPlayerID = nextPlayerID
		return nil
	})
}

func (m *MemoryStore) UpdateRoomStatus(ctx context.Context, roomID string, status fukuwarai.RoomStatus) (fukuwarai.Room, error) {
	return m.updateRoom(ctx, roomID, func(room *fukuwarai.Room) error {
		room.Status = status
		return nil
	})
}

func (m *MemoryStore) SetRoomTemplate(ctx context.Context, roomID, templateID string) (fukuwarai.Room, error) {
	return m.updateRoom(ctx, roomID, func(room *fukuwarai.Room) error {
		room.TemplateID = templateID
		return nil
	})
}

func (m *MemoryStore) StartRoom(ctx context.Context, roomID, firstPlayerID string) (fukuwarai.Room, error) {
	return m.updateRoom(ctx, roomID, func(room *fukuwarai.Room) error {
		if room.Status != fukuwarai.RoomStatusWaiting {
			return ErrRoomNotWaiting
		}
		room.Status = fukuwarai.RoomStatusPlaying
		room.CurrentTurnPlayerID = firstPlayerID
		return nil
	})
}

func (m *MemoryStore) updateRoom(ctx context.Context, roomID string, mutate func(*fukuwarai.Room) error) (fukuwarai.Room, error) {
	if err := ctx.Err(); err != nil {
		return fukuwarai.Room{}, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fukuwarai.Room{}, ErrClosed
	}
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return fukuwarai.Room{}, ErrNotFound
	}
	if err := mutate(&room); err != nil {
		m.mu.Unlock()
		return fukuwarai.Room{}, err
	}
	room.Version++
	m.rooms[roomID] = room
	m.mu.Unlock()

	m.hub.publish(roomID, Event{Type: EventRoomUpdated, Room: room})
	return room, nil
}

func (m *MemoryStore) ListTemplates(ctx context.Context) ([]fukuwarai.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fukuwarai.Template{}, m.templates...), nil
}

func (m *MemoryStore) SeedTemplates(ctx context.Context, templates []fukuwarai.Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tpl := range templates {
		exists := false
		for _, existing := range m.templates {
			if existing.ID == tpl.ID {
				exists = true
				break
			}
		}
		if !exists {
			if tpl.CreatedAt.IsZero() {
				tpl.CreatedAt = m.now().UTC()
			}
			m.templates = append(m.templates, tpl)
		}
	}
	sort.Slice(m.templates, func(i, j int) bool {
		if !m.templates[i].CreatedAt.Equal(m.templates[j].CreatedAt) {
			return m.templates[i].CreatedAt.Before(m.templates[j].CreatedAt)
		}
		return m.templates[i].ID < m.templates[j].ID
	})
	return nil
}

func (m *MemoryStore) SubscribeRoom(roomID string) (*Subscription, error) {
	return m.hub.subscribe(roomID)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hub.closeAll(true)
	return nil
}
