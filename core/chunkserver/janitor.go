package chunkserver

import (
	"context"
	"time"
)

// Janitor removes session containers that have not been touched for longer
// than the configured TTL. Abandoned uploads otherwise keep their chunks
// forever.
type Janitor struct {
	store    *ChunkStore
	ttl      time.Duration
	interval time.Duration
}

func NewJanitor(store *ChunkStore, ttl, interval time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		ttl:      ttl,
		interval: interval,
	}
}

// Start sweeps stale sessions every interval until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 || j.interval <= 0 {
		log.Infow("janitor", "status", "disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := j.Sweep(time.Now())
			if err != nil {
				log.Errorw("janitor", "status", "sweep failed", "error", err)
				continue
			}

			if len(removed) > 0 {
				log.Infow("janitor", "status", "removed stale sessions", "sessions", removed)
			}
		case <-ctx.Done():
			log.Infow("shutdown", "janitor", "stopping stale session janitor")
			return
		}
	}
}

// Sweep removes containers last modified before now minus the TTL and
// returns their session ids.
func (j *Janitor) Sweep(now time.Time) ([]string, error) {
	containers, err := j.store.Containers()
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0)
	for sessionID, modTime := range containers {
		if now.Sub(modTime) < j.ttl {
			continue
		}

		// committed sessions are kept, in-flight and reserved sessions expire
		rec, err := j.store.ReadCommit(sessionID)
		if err != nil {
			return removed, err
		}

		if rec != nil {
			continue
		}

		chunks, err := j.store.List(sessionID)
		if err != nil {
			return removed, err
		}

		m, err := j.store.ReadManifest(sessionID)
		if err != nil {
			return removed, err
		}

		if len(chunks) == 0 && m == nil && !j.store.isEmpty(sessionID) {
			continue
		}

		if err := j.store.RemoveContainer(sessionID); err != nil {
			return removed, err
		}

		removed = append(removed, sessionID)
	}

	return removed, nil
}
