package room

import (
	"context"
	"log"
	"time"

	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

// runListener owns the store subscription for this room. Every
// (re)subscribe is followed by a full fetch-and-reconcile, because the
// feed guarantees nothing across an interruption.
func (r *Runtime) runListener() {
	backoff := resubscribeMin
	for {
		select {
		case <-r.done:
			return
		default:
		}

		sub, err := r.store.SubscribeRoom(r.ID)
		if err != nil {
			log.Printf("[Room %s] Subscribe failed: %v", r.ID, err)
			if !r.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, resubscribeMax)
			continue
		}
		if err := r.resync(); err != nil {
			log.Printf("[Room %s] Resync failed: %v", r.ID, err)
			sub.Close()
			if !r.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, resubscribeMax)
			continue
		}
		backoff = resubscribeMin

		r.drain(sub.Events())
		sub.Close()

		select {
		case <-r.done:
			return
		default:
			log.Printf("[Room %s] Change feed lost, resubscribing", r.ID)
		}
	}
}

// drain forwards feed deliveries to the actor until the feed channel
// closes or the runtime stops.
func (r *Runtime) drain(feed <-chan store.Event) {
	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				return
			}
			select {
			case r.events <- actorEvent{typ: eventFeed, feed: ev}:
			case <-r.done:
				return
			}
		case <-r.done:
			return
		}
	}
}

// resync fetches the authoritative room row, seats and placement log
// and hands them to the actor for a set-union merge.
func (r *Runtime) resync() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	room, err := r.store.GetRoom(ctx, r.ID)
	if err != nil {
		return err
	}
	players, err := r.store.ListPlayers(ctx, r.ID)
	if err != nil {
		return err
	}
	placements, err := r.store.ListPlacements(ctx, r.ID)
	if err != nil {
		return err
	}

	ev := actorEvent{
		typ:        eventResync,
		room:       room,
		players:    players,
		placements: placements,
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

func (r *Runtime) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	}
}
