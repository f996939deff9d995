package vqa

import (
	"context"
	"log"
	"time"
)

const defaultReapInterval = 5 * time.Minute

// StartReaper launches the background goroutine that expires idle sessions
// until ctx is cancelled.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultReapInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("[vqa] reaper stopped")
				return
			case <-ticker.C:
				if n := s.EvictExpired(s.clock()); n > 0 {
					log.Printf("[vqa] reaper evicted %d idle session(s), %d live", n, s.Len())
				}
			}
		}
	}()
}
