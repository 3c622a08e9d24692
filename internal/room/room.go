// Package room hosts the per-room runtime: an actor that serializes
// placement attempts, folds the store change feed into the in-process
// session and fans state out to attached viewer connections.
package room

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
	"github.com/yakan-hub/hukuwarai-hontai/internal/codec"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

// ErrStopped is returned for submissions to a runtime that has shut
// down.
var ErrStopped = errors.New("room runtime stopped")

const (
	eventQueueSize = 256
	storeOpTimeout = 5 * time.Second
	tickInterval   = 15 * time.Second
	resubscribeMin = 250 * time.Millisecond
	resubscribeMax = 5 * time.Second
)

type eventType int

const (
	eventAttach eventType = iota
	eventDetach
	eventPlace
	eventFeed
	eventResync
)

type actorEvent struct {
	typ eventType

	connID string
	send   func([]byte)

	playerID  string
	candidate fukuwarai.Candidate

	feed store.Event

	room       fukuwarai.Room
	players    []fukuwarai.Player
	placements []fukuwarai.Placement

	resp chan error
}

// Runtime is the actor owning one room. All session mutations happen on
// the run goroutine; the replication listener and public methods only
// submit events.
type Runtime struct {
	ID string

	cfg     fukuwarai.Config
	store   store.Store
	session *fukuwarai.Session

	mu         sync.RWMutex
	viewers    map[string]func([]byte)
	emptySince time.Time

	// Placement ids we committed and must observe back on the feed
	// before advancing the turn.
	pendingAdvance map[string]struct{}

	events   chan actorEvent
	done     chan struct{}
	stopOnce sync.Once
	onStop   func(roomID string)
}

// New starts the runtime for roomID. Initial state arrives through the
// listener's first reconcile; until then the session rejects attempts
// as not playing. onStop may be nil.
func New(roomID string, cfg fukuwarai.Config, st store.Store, onStop func(roomID string)) *Runtime {
	r := &Runtime{
		ID:             roomID,
		cfg:            cfg,
		store:          st,
		session:        fukuwarai.NewSession(fukuwarai.Room{ID: roomID}, nil),
		viewers:        make(map[string]func([]byte)),
		emptySince:     time.Now(),
		pendingAdvance: make(map[string]struct{}),
		events:         make(chan actorEvent, eventQueueSize),
		done:           make(chan struct{}),
		onStop:         onStop,
	}
	go r.run()
	go r.runListener()
	return r
}

// Stop shuts the runtime down. Idempotent.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		if r.onStop != nil {
			r.onStop(r.ID)
		}
	})
}

// Done is closed when the runtime has stopped.
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Snapshot returns the current session projection.
func (r *Runtime) Snapshot() fukuwarai.Snapshot { return r.session.Snapshot() }

// PlayerFor resolves the seat owned by an account in this room.
func (r *Runtime) PlayerFor(accountID uint64) (fukuwarai.Player, bool) {
	for _, p := range r.session.Snapshot().Players {
		if p.AccountID == accountID {
			return p, true
		}
	}
	return fukuwarai.Player{}, false
}

// Attach registers a viewer connection. send must never block; the
// gateway backs it with a buffered channel. The viewer immediately
// receives a full room snapshot.
func (r *Runtime) Attach(ctx context.Context, connID string, send func([]byte)) error {
	return r.submit(ctx, actorEvent{typ: eventAttach, connID: connID, send: send})
}

// Detach unregisters a viewer connection.
func (r *Runtime) Detach(connID string) {
	select {
	case r.events <- actorEvent{typ: eventDetach, connID: connID}:
	case <-r.done:
	}
}

// Place runs one placement attempt end to end: coordinator check,
// store commit, pending-advance registration. The turn itself advances
// only after the committed placement is observed on the change feed.
func (r *Runtime) Place(ctx context.Context, playerID string, c fukuwarai.Candidate) error {
	return r.submit(ctx, actorEvent{typ: eventPlace, playerID: playerID, candidate: c})
}

func (r *Runtime) submit(ctx context.Context, ev actorEvent) error {
	ev.resp = make(chan error, 1)
	select {
	case r.events <- ev:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.resp:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-r.events:
			err := r.handleEvent(ev)
			if ev.resp != nil {
				ev.resp <- err
			}
		case <-ticker.C:
			r.tick()
		case <-r.done:
			return
		}
	}
}

func (r *Runtime) handleEvent(ev actorEvent) error {
	switch ev.typ {
	case eventAttach:
		return r.handleAttach(ev.connID, ev.send)
	case eventDetach:
		r.handleDetach(ev.connID)
		return nil
	case eventPlace:
		return r.handlePlace(ev.playerID, ev.candidate)
	case eventFeed:
		r.handleFeed(ev.feed)
		return nil
	case eventResync:
		r.handleResync(ev.room, ev.players, ev.placements)
		return nil
	}
	return nil
}

func (r *Runtime) handleAttach(connID string, send func([]byte)) error {
	r.mu.Lock()
	r.viewers[connID] = send
	r.emptySince = time.Time{}
	r.mu.Unlock()

	send(codec.RoomStateMessage(r.session.Snapshot()))
	return nil
}

func (r *Runtime) handleDetach(connID string) {
	r.mu.Lock()
	delete(r.viewers, connID)
	if len(r.viewers) == 0 {
		r.emptySince = time.Now()
	}
	r.mu.Unlock()
}

func (r *Runtime) handlePlace(playerID string, c fukuwarai.Candidate) error {
	if err := r.session.CheckPlacement(playerID, c); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	placed, err := r.store.InsertPlacement(ctx, store.PlacementInput{
		RoomID:   r.ID,
		PlayerID: playerID,
		PartType: c.PartType,
		PartID:   c.PartID,
		X:        c.X,
		Y:        c.Y,
		Scale:    c.Scale,
		Rotation: c.Rotation,
	})
	if err != nil {
		// Losing the commit race against a concurrent placement for
		// the same category surfaces exactly like a filled category.
		if errors.Is(err, store.ErrConstraintViolation) {
			return fukuwarai.ErrCategoryFilled
		}
		return err
	}
	r.pendingAdvance[placed.ID] = struct{}{}
	return nil
}

func (r *Runtime) handleFeed(ev store.Event) {
	switch ev.Type {
	case store.EventPlacementInserted:
		r.foldPlacement(ev.Placement)
	case store.EventRoomUpdated:
		r.foldRoom(ev.Room)
	case store.EventPlayerJoined:
		if r.session.UpsertPlayer(ev.Player) {
			r.fanout(codec.PlayerJoinedMessage(ev.Player))
		}
	}
}

func (r *Runtime) foldPlacement(p fukuwarai.Placement) {
	applied, err := r.session.ApplyPlacement(p)
	if err != nil {
		log.Printf("[Room %s] %v", r.ID, err)
		return
	}
	if applied {
		r.fanout(codec.PlacementMessage(p))
	}
	if _, mine := r.pendingAdvance[p.ID]; mine && r.session.HasPlacement(p.ID) {
		delete(r.pendingAdvance, p.ID)
		r.afterOwnPlacement()
	}
}

func (r *Runtime) foldRoom(room fukuwarai.Room) {
	if !r.session.ApplyRoom(room) {
		return
	}
	if room.Status == fukuwarai.RoomStatusFinished {
		r.fanout(codec.CompleteMessage(r.session.Snapshot()))
		return
	}
	r.fanout(codec.TurnMessage(room))
}

// afterOwnPlacement runs once per committed placement of this runtime,
// after the placement came back on the feed: finish the room when all
// categories are filled, otherwise rotate the turn.
func (r *Runtime) afterOwnPlacement() {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	snap := r.session.Snapshot()
	if snap.Complete {
		if _, err := r.store.UpdateRoomStatus(ctx, r.ID, fukuwarai.RoomStatusFinished); err != nil {
			log.Printf("[Room %s] Finish transition failed: %v", r.ID, err)
		}
		return
	}
	next, err := r.session.NextPlayer()
	if err != nil {
		log.Printf("[Room %s] Turn rotation failed: %v", r.ID, err)
		return
	}
	if _, err := r.store.UpdateRoomCurrentTurn(ctx, r.ID, next.ID); err != nil {
		log.Printf("[Room %s] Turn handoff failed: %v", r.ID, err)
	}
}

func (r *Runtime) handleResync(room fukuwarai.Room, players []fukuwarai.Player, placements []fukuwarai.Placement) {
	for _, p := range players {
		if r.session.UpsertPlayer(p) {
			r.fanout(codec.PlayerJoinedMessage(p))
		}
	}
	added, err := r.session.Reconcile(room, placements)
	if err != nil {
		log.Printf("[Room %s] %v", r.ID, err)
	}
	if added > 0 {
		log.Printf("[Room %s] Reconciled %d placements after feed recovery", r.ID, added)
	}

	// A pending advance may have been satisfied by the reconcile
	// rather than a live feed delivery.
	for id := range r.pendingAdvance {
		if r.session.HasPlacement(id) {
			delete(r.pendingAdvance, id)
			r.afterOwnPlacement()
		}
	}

	// Repair a missed finish: all categories filled but the placing
	// runtime died before writing the transition.
	snap := r.session.Snapshot()
	if snap.Complete && snap.Room.Status == fukuwarai.RoomStatusPlaying {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if _, err := r.store.UpdateRoomStatus(ctx, r.ID, fukuwarai.RoomStatusFinished); err != nil {
			log.Printf("[Room %s] Finish repair failed: %v", r.ID, err)
		}
		cancel()
	}

	r.fanout(codec.RoomStateMessage(snap))
}

func (r *Runtime) fanout(data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, send := range r.viewers {
		send(data)
	}
}

func (r *Runtime) tick() {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	r.mu.RLock()
	idle := len(r.viewers) == 0 && !r.emptySince.IsZero() &&
		time.Since(r.emptySince) > r.cfg.IdleTimeout
	r.mu.RUnlock()
	if idle {
		log.Printf("[Room %s] Idle for %v, shutting down", r.ID, r.cfg.IdleTimeout)
		r.Stop()
	}
}
