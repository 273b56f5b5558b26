package worker

import (
	"context"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// FeedBoard is the part of *feed.Board the worker drives.
type FeedBoard interface {
	Refresh(q earthquake.QueryConfig) bool
	Reset()
	WaitDelivered(ctx context.Context) error
	Snapshot() feed.Snapshot
}
