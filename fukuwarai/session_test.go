package fukuwarai

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testRoom(status RoomStatus, currentPlayerID string) Room {
	return Room{
		ID:                  "room-1",
		Status:              status,
		CurrentTurnPlayerID: currentPlayerID,
		Version:             1,
		CreatedAt:           time.Unix(1700000000, 0),
	}
}

func testPlayer(id string, turnOrder int) Player {
	return Player{
		ID:          id,
		RoomID:      "room-1",
		DisplayName: "Player " + id,
		TurnOrder:   turnOrder,
	}
}

func testPlacement(id string, playerID string, pt PartType) Placement {
	return Placement{
		ID:       id,
		RoomID:   "room-1",
		PlayerID: playerID,
		PartType: pt,
		PartID:   pt.String() + "-1",
		X:        10,
		Y:        20,
		Scale:    1,
		PlacedAt: time.Unix(1700000100, 0),
	}
}

func TestApplyPlacement_IdempotentFold(t *testing.T) {
	s := NewSession(testRoom(RoomStatusPlaying, "p1"), []Player{testPlayer("p1", 1)})

	p := testPlacement("pl-1", "p1", PartTypeEyes)
	applied, err := s.ApplyPlacement(p)
	if err != nil {
		t.Fatalf("ApplyPlacement err: %v", err)
	}
	if !applied {
		t.Fatalf("expected first apply to take effect")
	}

	once := s.Snapshot()

	applied, err = s.ApplyPlacement(p)
	if err != nil {
		t.Fatalf("duplicate ApplyPlacement err: %v", err)
	}
	if applied {
		t.Fatalf("duplicate delivery must be a no-op")
	}

	twice := s.Snapshot()
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("snapshot changed after duplicate fold (-once +twice):\n%s", diff)
	}
}

func TestApplyPlacement_DuplicateCategoryIsIntegrityError(t *testing.T) {
	s := NewSession(testRoom(RoomStatusPlaying, "p1"), []Player{testPlayer("p1", 1)})

	if _, err := s.ApplyPlacement(testPlacement("pl-1", "p1", PartTypeNose)); err != nil {
		t.Fatalf("ApplyPlacement err: %v", err)
	}

	conflicting := testPlacement("pl-2", "p1", PartTypeNose)
	applied, err := s.ApplyPlacement(conflicting)
	if applied {
		t.Fatalf("conflicting category must not be merged")
	}
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrity.HaveID != "pl-1" || integrity.GotID != "pl-2" {
		t.Fatalf("unexpected integrity detail: %+v", integrity)
	}
	if s.HasPlacement("pl-2") {
		t.Fatalf("conflicting placement leaked into state")
	}
}

func TestApplyRoom_StaleVersionIgnored(t *testing.T) {
	s := NewSession(testRoom(RoomStatusWaiting, ""), nil)

	fresh := testRoom(RoomStatusPlaying, "p1")
	fresh.Version = 3
	if !s.ApplyRoom(fresh) {
		t.Fatalf("fresh room update must apply")
	}

	stale := testRoom(RoomStatusWaiting, "")
	stale.Version = 2
	if s.ApplyRoom(stale) {
		t.Fatalf("stale room update must be ignored")
	}
	if got := s.Room(); got.Status != RoomStatusPlaying || got.Version != 3 {
		t.Fatalf("room regressed after stale delivery: %+v", got)
	}

	redelivered := fresh
	if s.ApplyRoom(redelivered) {
		t.Fatalf("equal-version redelivery must be ignored")
	}
}

func TestApplyRoom_OtherRoomIgnored(t *testing.T) {
	s := NewSession(testRoom(RoomStatusPlaying, "p1"), nil)
	other := Room{ID: "room-2", Status: RoomStatusFinished, Version: 99}
	if s.ApplyRoom(other) {
		t.Fatalf("update for another room must be ignored")
	}
}

func TestUpsertPlayer_SortsByTurnOrder(t *testing.T) {
	s := NewSession(testRoom(RoomStatusWaiting, ""), nil)
	s.UpsertPlayer(testPlayer("p2", 2))
	s.UpsertPlayer(testPlayer("p1", 1))
	s.UpsertPlayer(testPlayer("p3", 3))

	snap := s.Snapshot()
	if len(snap.Players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(snap.Players))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if snap.Players[i].ID != want {
			t.Fatalf("players out of order at %d: got %s want %s", i, snap.Players[i].ID, want)
		}
	}

	// Redelivery of an identical seat row is a no-op.
	if s.UpsertPlayer(testPlayer("p2", 2)) {
		t.Fatalf("identical seat redelivery must be a no-op")
	}

	// Display name is the one mutable field.
	renamed := testPlayer("p2", 2)
	renamed.DisplayName = "Hanako"
	if !s.UpsertPlayer(renamed) {
		t.Fatalf("display name change must apply")
	}
}

func TestReconcile_SetUnionByIdentity(t *testing.T) {
	room := testRoom(RoomStatusPlaying, "p1")
	s := NewSession(room, []Player{testPlayer("p1", 1)})

	a := testPlacement("pl-a", "p1", PartTypeHair)
	b := testPlacement("pl-b", "p1", PartTypeEyes)
	c := testPlacement("pl-c", "p1", PartTypeNose)

	for _, p := range []Placement{a, b} {
		if _, err := s.ApplyPlacement(p); err != nil {
			t.Fatalf("ApplyPlacement err: %v", err)
		}
	}

	// The store holds {a, b, c}; the feed dropped c.
	fetched := room
	fetched.Version = 2
	added, err := s.Reconcile(fetched, []Placement{a, b, c})
	if err != nil {
		t.Fatalf("Reconcile err: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected exactly the missing placement added, got %d", added)
	}

	snap := s.Snapshot()
	if len(snap.Placements) != 3 {
		t.Fatalf("expected 3 placements after reconcile, got %d", len(snap.Placements))
	}
	seen := map[string]int{}
	for _, p := range snap.Placements {
		seen[p.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("placement %s duplicated %d times", id, n)
		}
	}
}

func TestSnapshot_PlacementsOrderedByPlacedAt(t *testing.T) {
	s := NewSession(testRoom(RoomStatusPlaying, "p1"), []Player{testPlayer("p1", 1)})

	late := testPlacement("pl-late", "p1", PartTypeMouth)
	late.PlacedAt = time.Unix(1700000300, 0)
	early := testPlacement("pl-early", "p1", PartTypeHair)
	early.PlacedAt = time.Unix(1700000200, 0)

	// Arrival order is reversed relative to commit order.
	for _, p := range []Placement{late, early} {
		if _, err := s.ApplyPlacement(p); err != nil {
			t.Fatalf("ApplyPlacement err: %v", err)
		}
	}

	snap := s.Snapshot()
	if snap.Placements[0].ID != "pl-early" || snap.Placements[1].ID != "pl-late" {
		t.Fatalf("placements not ordered by commit time: %+v", snap.Placements)
	}
}
