package fukuwarai

import (
	"sort"
	"sync"
)

// Session is the authoritative in-process projection of one room: the
// room row, its seats, and the append-only placement log. All folds are
// idempotent so the replication feed may deliver duplicates or redeliver
// after a reconnect without corrupting state.
type Session struct {
	mu         sync.RWMutex
	room       Room
	players    []Player
	placements map[string]Placement
	filled     map[PartType]string // category -> placement id
}

func NewSession(room Room, players []Player) *Session {
	s := &Session{
		room:       room,
		placements: make(map[string]Placement),
		filled:     make(map[PartType]string),
	}
	for _, p := range players {
		s.upsertPlayerLocked(p)
	}
	return s
}

// ApplyRoom folds a room-row update. Updates are version-guarded:
// arrival order is meaningless under redelivery, so only a strictly
// newer version wins.
func (s *Session) ApplyRoom(r Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID != s.room.ID {
		return false
	}
	if r.Version <= s.room.Version {
		return false
	}
	s.room = r
	return true
}

// UpsertPlayer folds a seat row by identity. Display name is the only
// field that may legitimately change after creation.
func (s *Session) UpsertPlayer(p Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPlayerLocked(p)
}

func (s *Session) upsertPlayerLocked(p Player) bool {
	if p.RoomID != s.room.ID {
		return false
	}
	for i, existing := range s.players {
		if existing.ID == p.ID {
			if existing.DisplayName == p.DisplayName {
				return false
			}
			s.players[i].DisplayName = p.DisplayName
			return true
		}
	}
	s.players = append(s.players, p)
	sort.Slice(s.players, func(i, j int) bool {
		return s.players[i].TurnOrder < s.players[j].TurnOrder
	})
	return true
}

// ApplyPlacement folds one placement event. Returns (false, nil) for a
// duplicate delivery of an already-applied placement. A second
// placement id claiming an already-filled category is a data-integrity
// violation: it is reported and not merged.
func (s *Session) ApplyPlacement(p Placement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyPlacementLocked(p)
}

func (s *Session) applyPlacementLocked(p Placement) (bool, error) {
	if p.RoomID != s.room.ID {
		return false, nil
	}
	if _, exists := s.placements[p.ID]; exists {
		return false, nil
	}
	if haveID, taken := s.filled[p.PartType]; taken {
		return false, &IntegrityError{
			RoomID:   s.room.ID,
			PartType: p.PartType,
			HaveID:   haveID,
			GotID:    p.ID,
		}
	}
	s.placements[p.ID] = p
	s.filled[p.PartType] = p.ID
	return true, nil
}

// Reconcile merges a freshly fetched room row and placement list after
// a feed interruption: set union keyed by placement id, never assuming
// the stream was gapless. Returns the number of placements added.
func (s *Session) Reconcile(room Room, placements []Placement) (added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.ID == s.room.ID && room.Version > s.room.Version {
		s.room = room
	}
	for _, p := range placements {
		applied, applyErr := s.applyPlacementLocked(p)
		if applyErr != nil && err == nil {
			err = applyErr
		}
		if applied {
			added++
		}
	}
	return added, err
}

// Room returns the current room row.
func (s *Session) Room() Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// HasPlacement reports whether a placement id has been folded.
func (s *Session) HasPlacement(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.placements[id]
	return ok
}

// Snapshot 現在の部屋の完全なコピー
type Snapshot struct {
	Room       Room
	Players    []Player
	Placements []Placement
	Complete   bool
	Missing    []PartType
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Room:    s.room,
		Players: append([]Player{}, s.players...),
	}
	for _, p := range s.placements {
		snap.Placements = append(snap.Placements, p)
	}
	sort.Slice(snap.Placements, func(i, j int) bool {
		a, b := snap.Placements[i], snap.Placements[j]
		if !a.PlacedAt.Equal(b.PlacedAt) {
			return a.PlacedAt.Before(b.PlacedAt)
		}
		return a.ID < b.ID
	})
	snap.Complete = len(s.filled) == PartTypeCount
	snap.Missing = s.missingLocked()
	return snap
}
