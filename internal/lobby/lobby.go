// Package lobby manages room lifecycle: creation, seating, game start
// and the registry of live room runtimes.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
	"github.com/yakan-hub/hukuwarai-hontai/internal/room"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

var (
	ErrRoomFull = errors.New("room is full")
	// ErrNotHost rejects start/template requests from anyone but the
	// first seat.
	ErrNotHost          = errors.New("only the room creator may do this")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrTemplateNotFound = errors.New("template not found")
)

const maxJoinRetries = 4

// Lobby owns the runtime registry and fronts all room mutations that
// are not placement attempts.
type Lobby struct {
	mu    sync.RWMutex
	rooms map[string]*room.Runtime

	store store.Store
	cfg   fukuwarai.Config
}

func New(st store.Store, cfg fukuwarai.Config) *Lobby {
	return &Lobby{
		rooms: make(map[string]*room.Runtime),
		store: st,
		cfg:   cfg,
	}
}

// CreateRoom creates a waiting room and seats its creator at turn
// order 1.
func (l *Lobby) CreateRoom(ctx context.Context, displayName string, accountID uint64) (fukuwarai.Room, fukuwarai.Player, error) {
	r, err := l.store.CreateRoom(ctx)
	if err != nil {
		return fukuwarai.Room{}, fukuwarai.Player{}, err
	}
	if displayName == "" {
		displayName = "Player 1"
	}
	p, err := l.store.CreatePlayer(ctx, r.ID, displayName, 1, accountID)
	if err != nil {
		return fukuwarai.Room{}, fukuwarai.Player{}, err
	}
	log.Printf("[Lobby] Room %s created by %s", r.ID, p.ID)
	return r, p, nil
}

// JoinRoom seats an account in a waiting room. The turn order is
// derived from the current seat count; losing the seat race against a
// concurrent join re-derives and retries. An account already seated in
// the room gets its existing seat back.
func (l *Lobby) JoinRoom(ctx context.Context, roomID, displayName string, accountID uint64) (fukuwarai.Player, error) {
	r, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return fukuwarai.Player{}, err
	}
	if r.Status != fukuwarai.RoomStatusWaiting {
		return fukuwarai.Player{}, store.ErrRoomNotWaiting
	}

	var lastErr error
	for attempt := 0; attempt < maxJoinRetries; attempt++ {
		players, err := l.store.ListPlayers(ctx, roomID)
		if err != nil {
			return fukuwarai.Player{}, err
		}
		if accountID != 0 {
			for _, p := range players {
				if p.AccountID == accountID {
					return p, nil
				}
			}
		}
		if len(players) >= l.cfg.MaxPlayers {
			return fukuwarai.Player{}, ErrRoomFull
		}

		turnOrder := len(players) + 1
		name := displayName
		if name == "" {
			name = fmt.Sprintf("Player %d", turnOrder)
		}
		p, err := l.store.CreatePlayer(ctx, roomID, name, turnOrder, accountID)
		if err == nil {
			log.Printf("[Lobby] %s joined room %s at seat %d", p.ID, roomID, turnOrder)
			return p, nil
		}
		if !errors.Is(err, store.ErrTurnOrderTaken) {
			return fukuwarai.Player{}, err
		}
		lastErr = err
	}
	return fukuwarai.Player{}, lastErr
}

// StartGame flips a waiting room to playing and hands the first turn
// to seat 1. Only the account seated first may start, and only with
// enough seats filled. Seat ids are public in every snapshot, so the
// requester is identified by account, never by a client-supplied
// player id.
func (l *Lobby) StartGame(ctx context.Context, roomID string, accountID uint64) (fukuwarai.Room, error) {
	players, err := l.store.ListPlayers(ctx, roomID)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	host, ok := firstSeat(players)
	if !ok {
		return fukuwarai.Room{}, ErrNotEnoughPlayers
	}
	if host.AccountID != accountID {
		return fukuwarai.Room{}, ErrNotHost
	}
	if len(players) < l.cfg.MinPlayers {
		return fukuwarai.Room{}, ErrNotEnoughPlayers
	}
	r, err := l.store.StartRoom(ctx, roomID, host.ID)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	log.Printf("[Lobby] Room %s started with %d players", roomID, len(players))
	return r, nil
}

// SelectTemplate sets the face outline while the room is still
// waiting. Restricted to the first-seat account like StartGame.
func (l *Lobby) SelectTemplate(ctx context.Context, roomID, templateID string, accountID uint64) (fukuwarai.Room, error) {
	r, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	if r.Status != fukuwarai.RoomStatusWaiting {
		return fukuwarai.Room{}, store.ErrRoomNotWaiting
	}
	players, err := l.store.ListPlayers(ctx, roomID)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	if host, ok := firstSeat(players); !ok || host.AccountID != accountID {
		return fukuwarai.Room{}, ErrNotHost
	}

	templates, err := l.store.ListTemplates(ctx)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	found := false
	for _, t := range templates {
		if t.ID == templateID {
			found = true
			break
		}
	}
	if !found {
		return fukuwarai.Room{}, ErrTemplateNotFound
	}
	return l.store.SetRoomTemplate(ctx, roomID, templateID)
}

// Runtime returns the live runtime for a room, creating it on first
// use. A runtime that idled out is replaced.
func (l *Lobby) Runtime(ctx context.Context, roomID string) (*room.Runtime, error) {
	if _, err := l.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rt, ok := l.rooms[roomID]; ok {
		select {
		case <-rt.Done():
			delete(l.rooms, roomID)
		default:
			return rt, nil
		}
	}
	rt := room.New(roomID, l.cfg, l.store, l.evict)
	l.rooms[roomID] = rt
	return rt, nil
}

func (l *Lobby) evict(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rt, ok := l.rooms[roomID]; ok {
		select {
		case <-rt.Done():
			delete(l.rooms, roomID)
		default:
		}
	}
}

// Templates lists the selectable face outlines.
func (l *Lobby) Templates(ctx context.Context) ([]fukuwarai.Template, error) {
	return l.store.ListTemplates(ctx)
}

// Close stops every live runtime.
func (l *Lobby) Close() {
	l.mu.Lock()
	rooms := make([]*room.Runtime, 0, len(l.rooms))
	for _, rt := range l.rooms {
		rooms = append(rooms, rt)
	}
	l.rooms = make(map[string]*room.Runtime)
	l.mu.Unlock()

	for _, rt := range rooms {
		rt.Stop()
	}
}

func firstSeat(players []fukuwarai.Player) (fukuwarai.Player, bool) {
	for _, p := range players {
		if p.TurnOrder == 1 {
			return p, true
		}
	}
	return fukuwarai.Player{}, false
}
