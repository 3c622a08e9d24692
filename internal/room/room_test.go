package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
	"github.com/yakan-hub/hukuwarai-hontai/internal/codec"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

type testViewer struct {
	mu       sync.Mutex
	messages []codec.ServerMessage
}

func (v *testViewer) send(data []byte) {
	var msg codec.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		panic(err)
	}
	v.mu.Lock()
	v.messages = append(v.messages, msg)
	v.mu.Unlock()
}

func (v *testViewer) count(msgType string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, m := range v.messages {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startedRoom(t *testing.T, s store.Store, seats int) (fukuwarai.Room, []fukuwarai.Player) {
	t.Helper()
	ctx := context.Background()

	room, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom err: %v", err)
	}
	var players []fukuwarai.Player
	for i := 0; i < seats; i++ {
		p, err := s.CreatePlayer(ctx, room.ID, "", i+1, uint64(i+1))
		if err != nil {
			t.Fatalf("CreatePlayer err: %v", err)
		}
		players = append(players, p)
	}
	if _, err := s.StartRoom(ctx, room.ID, players[0].ID); err != nil {
		t.Fatalf("StartRoom err: %v", err)
	}
	return room, players
}

func startRuntime(t *testing.T, s store.Store, roomID string) *Runtime {
	t.Helper()
	rt := New(roomID, fukuwarai.DefaultConfig(), s, nil)
	t.Cleanup(rt.Stop)
	waitFor(t, "initial resync", func() bool {
		return rt.Snapshot().Room.Version > 0
	})
	return rt
}

func candidate(pt fukuwarai.PartType) fukuwarai.Candidate {
	return fukuwarai.Candidate{
		PartType: pt,
		PartID:   pt.String() + "-1",
		X:        120,
		Y:        80,
		Scale:    1,
	}
}

func TestRuntime_PlacementAdvancesTurnAfterFeedEcho(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 2)
	rt := startRuntime(t, s, roomRow.ID)

	viewer := &testViewer{}
	if err := rt.Attach(ctx, "conn-1", viewer.send); err != nil {
		t.Fatalf("Attach err: %v", err)
	}

	if err := rt.Place(ctx, players[0].ID, candidate(fukuwarai.PartTypeEyes)); err != nil {
		t.Fatalf("Place err: %v", err)
	}
	waitFor(t, "turn handoff", func() bool {
		return rt.Snapshot().Room.CurrentTurnPlayerID == players[1].ID
	})

	// The second player may not reuse a filled category.
	err := rt.Place(ctx, players[1].ID, candidate(fukuwarai.PartTypeEyes))
	if !errors.Is(err, fukuwarai.ErrCategoryFilled) {
		t.Fatalf("expected ErrCategoryFilled, got %v", err)
	}

	// Viewers saw the placement and the turn handoff.
	waitFor(t, "placement broadcast", func() bool {
		return viewer.count(codec.ServerPlacement) == 1
	})
	waitFor(t, "turn broadcast", func() bool {
		return viewer.count(codec.ServerTurn) >= 1
	})
}

func TestRuntime_TurnOrderEnforced(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 2)
	rt := startRuntime(t, s, roomRow.ID)

	err := rt.Place(ctx, players[1].ID, candidate(fukuwarai.PartTypeNose))
	if !errors.Is(err, fukuwarai.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if placements := rt.Snapshot().Placements; len(placements) != 0 {
		t.Fatalf("rejected attempt left placements: %d", len(placements))
	}
}

func TestRuntime_CompletionFinishesRoom(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 2)
	rt := startRuntime(t, s, roomRow.ID)

	viewer := &testViewer{}
	if err := rt.Attach(ctx, "conn-1", viewer.send); err != nil {
		t.Fatalf("Attach err: %v", err)
	}

	// Alternate through all six categories.
	acting := 0
	for _, pt := range fukuwarai.AllPartTypes() {
		player := players[acting%len(players)]
		waitFor(t, "turn for "+player.ID, func() bool {
			return rt.Snapshot().Room.CurrentTurnPlayerID == player.ID
		})
		if err := rt.Place(ctx, player.ID, candidate(pt)); err != nil {
			t.Fatalf("Place %s err: %v", pt, err)
		}
		acting++
	}

	waitFor(t, "finished transition", func() bool {
		snap := rt.Snapshot()
		return snap.Complete && snap.Room.Status == fukuwarai.RoomStatusFinished
	})
	waitFor(t, "complete broadcast", func() bool {
		return viewer.count(codec.ServerComplete) >= 1
	})

	// A finished room rejects further attempts even though turn fields
	// still carry their last value.
	holder := rt.Snapshot().Room.CurrentTurnPlayerID
	for _, p := range players {
		if p.ID == holder || holder == "" {
			err := rt.Place(ctx, p.ID, candidate(fukuwarai.PartTypeEyes))
			if !errors.Is(err, fukuwarai.ErrRoomNotPlaying) {
				t.Fatalf("expected ErrRoomNotPlaying, got %v", err)
			}
		}
	}
}

func TestRuntime_ForeignPlacementsDoNotAdvanceTurn(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 2)
	rt := startRuntime(t, s, roomRow.ID)

	// A placement committed outside this runtime (another server
	// instance) is folded but never triggers a local turn rotation.
	if _, err := s.InsertPlacement(ctx, store.PlacementInput{
		RoomID:   roomRow.ID,
		PlayerID: players[0].ID,
		PartType: fukuwarai.PartTypeHair,
		PartID:   "hair-2",
		X:        1, Y: 1, Scale: 1,
	}); err != nil {
		t.Fatalf("InsertPlacement err: %v", err)
	}

	waitFor(t, "foreign placement fold", func() bool {
		return len(rt.Snapshot().Placements) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if got := rt.Snapshot().Room.CurrentTurnPlayerID; got != players[0].ID {
		t.Fatalf("turn advanced without a local pending placement: %s", got)
	}
}

func TestRuntime_ResyncPicksUpExistingState(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 2)

	// History exists before the runtime ever subscribes; the first
	// reconcile must recover all of it.
	for _, pt := range []fukuwarai.PartType{fukuwarai.PartTypeHair, fukuwarai.PartTypeMouth} {
		if _, err := s.InsertPlacement(ctx, store.PlacementInput{
			RoomID:   roomRow.ID,
			PlayerID: players[0].ID,
			PartType: pt,
			PartID:   pt.String() + "-3",
			X:        5, Y: 5, Scale: 1,
		}); err != nil {
			t.Fatalf("InsertPlacement err: %v", err)
		}
	}

	rt := startRuntime(t, s, roomRow.ID)
	waitFor(t, "recovered placements", func() bool {
		return len(rt.Snapshot().Placements) == 2
	})

	snap := rt.Snapshot()
	if snap.Complete {
		t.Fatalf("two categories must not complete the set")
	}
	if len(snap.Missing) != fukuwarai.PartTypeCount-2 {
		t.Fatalf("expected %d missing categories, got %d", fukuwarai.PartTypeCount-2, len(snap.Missing))
	}
}

// unavailableStore subscribes fine but fails every room fetch, so the
// listener's resync never succeeds.
type unavailableStore struct {
	store.Store
	mu    sync.Mutex
	calls []time.Time
}

func (s *unavailableStore) GetRoom(ctx context.Context, roomID string) (fukuwarai.Room, error) {
	s.mu.Lock()
	s.calls = append(s.calls, time.Now())
	s.mu.Unlock()
	return fukuwarai.Room{}, errors.New("store unavailable")
}

func (s *unavailableStore) attempts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.calls...)
}

func TestRuntime_ResyncFailureBacksOff(t *testing.T) {
	mem := store.NewMemoryStore()
	defer mem.Close()
	s := &unavailableStore{Store: mem}

	rt := New("room-x", fukuwarai.DefaultConfig(), s, nil)
	defer rt.Stop()

	waitFor(t, "three resync attempts", func() bool {
		return len(s.attempts()) >= 3
	})
	rt.Stop()

	// Each failed resync doubles the wait, so attempts spread out
	// instead of hot-looping at the minimum interval.
	calls := s.attempts()
	first := calls[1].Sub(calls[0])
	second := calls[2].Sub(calls[1])
	if first < resubscribeMin {
		t.Fatalf("first retry after %v, want at least %v", first, resubscribeMin)
	}
	if second < 2*resubscribeMin {
		t.Fatalf("second retry after %v, want at least %v", second, 2*resubscribeMin)
	}
}

func TestRuntime_StopRejectsSubmissions(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	roomRow, players := startedRoom(t, s, 1)
	rt := startRuntime(t, s, roomRow.ID)

	rt.Stop()
	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done not closed after Stop")
	}

	if err := rt.Place(ctx, players[0].ID, candidate(fukuwarai.PartTypeEyes)); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
