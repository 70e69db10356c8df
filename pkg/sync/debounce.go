package sync

import (
	"context"
	"sync"
	"time"

	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/store"
)

// debouncedSaver coalesces rapid snapshot saves per game: each save
// cancels and reschedules the pending timer, so a burst of field
// changes produces one write.
type debouncedSaver struct {
	store store.Store
	delay time.Duration

	mutex   sync.Mutex
	pending map[int64]*pendingSave
}

type pendingSave struct {
	timer    *time.Timer
	snapshot *gametypes.GameSnapshot
}

func newDebouncedSaver(s store.Store, delay time.Duration) *debouncedSaver {
	return &debouncedSaver{
		store:   s,
		delay:   delay,
		pending: make(map[int64]*pendingSave),
	}
}

func (d *debouncedSaver) save(snapshot *gametypes.GameSnapshot) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	gameID := snapshot.GameID
	if p, ok := d.pending[gameID]; ok {
		p.timer.Stop()
	}

	p := &pendingSave{snapshot: snapshot}
	p.timer = time.AfterFunc(d.delay, func() {
		d.flush(gameID)
	})
	d.pending[gameID] = p
}

func (d *debouncedSaver) flush(gameID int64) {
	d.mutex.Lock()
	p, ok := d.pending[gameID]
	if ok {
		delete(d.pending, gameID)
	}
	d.mutex.Unlock()

	if !ok {
		return
	}

	if err := d.store.SaveGameState(context.Background(), p.snapshot); err != nil {
		log.Error("Failed to save debounced snapshot for game %d: %v", gameID, err)
	}
}

// flushAll writes every pending snapshot immediately. Used on shutdown.
func (d *debouncedSaver) flushAll() {
	d.mutex.Lock()
	gameIDs := make([]int64, 0, len(d.pending))
	for gameID, p := range d.pending {
		p.timer.Stop()
		gameIDs = append(gameIDs, gameID)
	}
	d.mutex.Unlock()

	for _, gameID := range gameIDs {
		d.flush(gameID)
	}
}
