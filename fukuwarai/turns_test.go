package fukuwarai

import (
	"errors"
	"math"
	"testing"
)

func playingSession(t *testing.T, currentPlayerID string, playerIDs ...string) *Session {
	t.Helper()
	players := make([]Player, 0, len(playerIDs))
	for i, id := range playerIDs {
		players = append(players, testPlayer(id, i+1))
	}
	return NewSession(testRoom(RoomStatusPlaying, currentPlayerID), players)
}

func validCandidate(pt PartType) Candidate {
	return Candidate{
		PartType: pt,
		PartID:   pt.String() + "-1",
		X:        120,
		Y:        80,
		Scale:    1,
		Rotation: 0,
	}
}

func TestCheckPlacement_NotYourTurn(t *testing.T) {
	s := playingSession(t, "p1", "p1", "p2")

	err := s.CheckPlacement("p2", validCandidate(PartTypeEyes))
	if !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if len(s.Snapshot().Placements) != 0 {
		t.Fatalf("rejected attempt must not mutate placements")
	}
}

func TestCheckPlacement_RoomNotPlaying(t *testing.T) {
	for _, status := range []RoomStatus{RoomStatusWaiting, RoomStatusFinished} {
		s := NewSession(testRoom(status, "p1"), []Player{testPlayer("p1", 1)})
		err := s.CheckPlacement("p1", validCandidate(PartTypeEyes))
		if !errors.Is(err, ErrRoomNotPlaying) {
			t.Fatalf("status=%s: expected ErrRoomNotPlaying, got %v", status, err)
		}
	}
}

func TestCheckPlacement_CategoryFilled(t *testing.T) {
	s := playingSession(t, "p2", "p1", "p2")
	if _, err := s.ApplyPlacement(testPlacement("pl-1", "p1", PartTypeEyes)); err != nil {
		t.Fatalf("ApplyPlacement err: %v", err)
	}

	err := s.CheckPlacement("p2", validCandidate(PartTypeEyes))
	if !errors.Is(err, ErrCategoryFilled) {
		t.Fatalf("expected ErrCategoryFilled, got %v", err)
	}
	// A different category is still open.
	if err := s.CheckPlacement("p2", validCandidate(PartTypeNose)); err != nil {
		t.Fatalf("open category rejected: %v", err)
	}
}

func TestCheckPlacement_RefusedOnceComplete(t *testing.T) {
	s := playingSession(t, "p1", "p1")
	for i, pt := range AllPartTypes() {
		p := testPlacement("pl-"+pt.String(), "p1", pt)
		_ = i
		if _, err := s.ApplyPlacement(p); err != nil {
			t.Fatalf("ApplyPlacement %s err: %v", pt, err)
		}
	}

	// The finished room-row transition may lag behind the sixth fold;
	// attempts are refused either way.
	err := s.CheckPlacement("p1", validCandidate(PartTypeEyes))
	if !errors.Is(err, ErrRoomNotPlaying) {
		t.Fatalf("expected ErrRoomNotPlaying after completion, got %v", err)
	}
}

func TestCandidateValidate(t *testing.T) {
	bad := []Candidate{
		{PartType: PartType(42), PartID: "x", Scale: 1},
		{PartType: PartTypeEyes, PartID: "", Scale: 1},
		{PartType: PartTypeEyes, PartID: "eyes-1", Scale: 0},
		{PartType: PartTypeEyes, PartID: "eyes-1", Scale: -2},
		{PartType: PartTypeEyes, PartID: "eyes-1", Scale: 1, X: math.NaN()},
		{PartType: PartTypeEyes, PartID: "eyes-1", Scale: 1, Rotation: math.Inf(1)},
	}
	for i, c := range bad {
		var invalid InvalidCandidateError
		if err := c.Validate(); !errors.As(err, &invalid) {
			t.Fatalf("case %d: expected InvalidCandidateError, got %v", i, err)
		}
	}

	// Off-canvas coordinates are accepted: bounds are not a contract.
	c := validCandidate(PartTypeMouth)
	c.X = -9999
	c.Y = 1e9
	if err := c.Validate(); err != nil {
		t.Fatalf("off-canvas candidate rejected: %v", err)
	}
}

func TestNextPlayer_CyclicRotation(t *testing.T) {
	s := playingSession(t, "p1", "p1", "p2", "p3")

	next, err := s.NextPlayer()
	if err != nil {
		t.Fatalf("NextPlayer err: %v", err)
	}
	if next.ID != "p2" {
		t.Fatalf("expected p2 after p1, got %s", next.ID)
	}

	// Wrap-around from the last seat.
	room := s.Room()
	room.CurrentTurnPlayerID = "p3"
	room.Version++
	if !s.ApplyRoom(room) {
		t.Fatalf("room update must apply")
	}
	next, err = s.NextPlayer()
	if err != nil {
		t.Fatalf("NextPlayer err: %v", err)
	}
	if next.ID != "p1" {
		t.Fatalf("expected wrap-around to p1, got %s", next.ID)
	}
}

func TestNextPlayer_UnknownHolderFallsToFirstSeat(t *testing.T) {
	s := playingSession(t, "", "p1", "p2")
	next, err := s.NextPlayer()
	if err != nil {
		t.Fatalf("NextPlayer err: %v", err)
	}
	if next.ID != "p1" {
		t.Fatalf("expected first seat, got %s", next.ID)
	}
}

func TestNextPlayer_NoPlayers(t *testing.T) {
	s := NewSession(testRoom(RoomStatusPlaying, ""), nil)
	if _, err := s.NextPlayer(); !errors.Is(err, ErrNoPlayers) {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
}
