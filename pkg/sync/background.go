package sync

import (
	"context"
	"time"

	"skatesync/pkg/log"
)

// Start runs the background sync loop until the context is done. Every
// sync interval, if the device is online, games with unsynced actions
// get an opportunistic pass. An offline-to-online transition schedules
// a pass after a short delay to let the transport stabilize. This loop
// is housekeeping; the primary delivery path is the immediate attempt
// on write plus the reconnect trigger.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.saver.flushAll()
			return nil
		case <-ticker.C:
			if !e.monitor.IsOnline() {
				continue
			}
			e.syncAll(ctx)
		case transition := <-e.monitor.Transitions():
			if !transition.Online {
				log.Info("Device went offline, queuing local actions")
				e.notify(0, "Offline")
				continue
			}
			log.Info("Device back online, scheduling sync in %s", e.reconnectDelay)
			time.AfterFunc(e.reconnectDelay, func() {
				if ctx.Err() != nil {
					return
				}
				e.syncAll(ctx)
			})
		}
	}
}

// syncAll runs a pass over every game with unsynced work.
func (e *Engine) syncAll(ctx context.Context) {
	gameIDs, err := e.store.ListGamesWithUnsynced(ctx)
	if err != nil {
		log.Warn("Failed to list games with unsynced actions: %v", err)
		return
	}

	for _, gameID := range gameIDs {
		if _, err := e.SyncGame(ctx, gameID, ""); err != nil {
			log.Error("Background sync failed for game %d: %v", gameID, err)
		}
		if err := e.FlushPendingActions(ctx, gameID); err != nil {
			log.Error("Failed to flush pending actions for game %d: %v", gameID, err)
		}
	}
}
