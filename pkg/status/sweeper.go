package status

import (
	"context"
	"time"
)

// Sweeper periodically evicts expired operations from a store.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper. A non-positive interval uses DefaultSweepInterval.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce evicts expired operations now and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		debugLog.Warnf("status sweep failed: %v", err)
	}
	if removed > 0 {
		debugLog.Infof("evicted %d expired operations", removed)
	}
	return removed
}
