package fukuwarai

import (
	"fmt"
	"math"
)

// Candidate is a placement attempt before the store assigns identity
// and timestamp.
type Candidate struct {
	PartType PartType
	PartID   string
	X        float64
	Y        float64
	Scale    float64
	Rotation float64
}

// Validate checks structural fields only. Coordinates are
// caller-supplied and deliberately not range-checked against the
// canvas.
func (c Candidate) Validate() error {
	if !c.PartType.Valid() {
		return ErrInvalidCandidate(fmt.Sprintf("unknown part type %d", c.PartType))
	}
	if c.PartID == "" {
		return ErrInvalidCandidate("empty part id")
	}
	if c.Scale <= 0 {
		return ErrInvalidCandidate(fmt.Sprintf("scale must be > 0, got %v", c.Scale))
	}
	for name, v := range map[string]float64{
		"x": c.X, "y": c.Y, "scale": c.Scale, "rotation": c.Rotation,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidCandidate(name + " is not finite")
		}
	}
	return nil
}

// CheckPlacement gates a placement attempt against turn order and
// category state. It never mutates the session; the store commit is
// the final arbiter of races between stale sessions.
func (s *Session) CheckPlacement(actingPlayerID string, c Candidate) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.room.Status != RoomStatusPlaying {
		return ErrRoomNotPlaying
	}
	if len(s.filled) == PartTypeCount {
		// Completion observed but the finished transition has not
		// landed yet. Treat the same as a finished room.
		return ErrRoomNotPlaying
	}
	if actingPlayerID == "" || actingPlayerID != s.room.CurrentTurnPlayerID {
		return ErrNotYourTurn
	}
	if _, taken := s.filled[c.PartType]; taken {
		return ErrCategoryFilled
	}
	return nil
}

// NextPlayer computes the turn rotation target:
// (index(current) + 1) mod playerCount over seats ordered by
// turn_order. When the current holder is unknown the first seat wins,
// matching game start.
func (s *Session) NextPlayer() (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.players) == 0 {
		return Player{}, ErrNoPlayers
	}
	current := -1
	for i, p := range s.players {
		if p.ID == s.room.CurrentTurnPlayerID {
			current = i
			break
		}
	}
	return s.players[(current+1)%len(s.players)], nil
}
