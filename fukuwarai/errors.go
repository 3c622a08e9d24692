package fukuwarai

import "errors"

var (
	// ErrNotYourTurn rejects an attempt by a player who does not hold
	// the current turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrCategoryFilled rejects an attempt for a category that already
	// has a committed placement. Also the surfaced form of losing a
	// store-level commit race.
	ErrCategoryFilled = errors.New("category already filled")
	// ErrRoomNotPlaying rejects attempts outside the playing phase,
	// including after completion.
	ErrRoomNotPlaying = errors.New("room is not playing")
	// ErrNoPlayers is returned when turn advancement has no seats to
	// rotate through.
	ErrNoPlayers = errors.New("room has no players")
)

type InvalidCandidateError string

func (e InvalidCandidateError) Error() string { return "invalid candidate: " + string(e) }

func ErrInvalidCandidate(msg string) error { return InvalidCandidateError(msg) }

// IntegrityError reports a violation of the one-placement-per-category
// invariant observed from the store. It is logged, never merged.
type IntegrityError struct {
	RoomID   string
	PartType PartType
	HaveID   string
	GotID    string
}

func (e *IntegrityError) Error() string {
	return "integrity: duplicate placement for " + e.PartType.String() +
		" in room " + e.RoomID + " (have " + e.HaveID + ", got " + e.GotID + ")"
}
