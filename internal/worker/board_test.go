package worker_test

import (
	"context"
	"sync"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

type fakeBoard struct {
	mu        sync.Mutex
	busy      bool
	waitErr   error
	snapshot  feed.Snapshot
	refreshes []earthquake.QueryConfig
	resets    int
	waits     int
}

func (b *fakeBoard) Refresh(q earthquake.QueryConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return false
	}
	b.refreshes = append(b.refreshes, q)
	return true
}

func (b *fakeBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

func (b *fakeBoard) WaitDelivered(ctx context.Context) error {
	b.mu.Lock()
	b.waits++
	err := b.waitErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (b *fakeBoard) Snapshot() feed.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

func (b *fakeBoard) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refreshes)
}

func deliveredSnapshot() feed.Snapshot {
	return feed.Snapshot{
		Quakes: []earthquake.Display{
			{Magnitude: 4.2, MagnitudeText: "4.2", Place: "10km N of Ridgecrest, CA", DateText: "Feb 32, 2024"},
			{Magnitude: 6.1, MagnitudeText: "6.1", Place: "Off the coast of Oregon", DateText: "Feb 32, 2024"},
			{Magnitude: 2.5, MagnitudeText: "2.5", Place: "Anza, CA", DateText: "Feb 32, 2024"},
		},
		Query:     earthquake.DefaultQueryConfig(),
		State:     earthquake.StateDelivered.String(),
		Delivered: true,
	}
}
