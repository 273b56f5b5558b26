package handler_test

import (
	"sync"
	"time"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// fakeBoard records calls and serves a fixed snapshot.
type fakeBoard struct {
	mu        sync.Mutex
	snap      feed.Snapshot
	ready     bool
	busy      bool
	refreshed []earthquake.QueryConfig
	resets    int
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{snap: feed.Snapshot{Query: earthquake.DefaultQueryConfig(), State: "idle"}}
}

func (b *fakeBoard) Snapshot() feed.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

func (b *fakeBoard) Refresh(q earthquake.QueryConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return false
	}
	b.refreshed = append(b.refreshed, q)
	return true
}

func (b *fakeBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

func (b *fakeBoard) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func deliveredSnapshot(at time.Time) feed.Snapshot {
	quakes := []earthquake.Earthquake{
		earthquake.NewEarthquake(6.1, "5km SE of Springfield", 1454124312220, "https://example.com/1"),
		earthquake.NewEarthquake(7.4, "Pacific-Antarctic Ridge", 1454110000000, "https://example.com/2"),
	}
	return feed.Snapshot{
		Quakes:          earthquake.DefaultFormatter.FormatAll(quakes),
		Query:           earthquake.DefaultQueryConfig(),
		State:           "delivered",
		Delivered:       true,
		LastDeliveredAt: &at,
	}
}
