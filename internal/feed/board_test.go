package feed_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

const twoQuakes = `{"features":[
{"properties":{"mag":6.1,"place":"5km SE of Springfield","time":1454124312220,"url":"https://example.com/1"}},
{"properties":{"mag":7.4,"place":"Pacific-Antarctic Ridge","time":1454110000000,"url":"https://example.com/2"}}
]}`

func startBoard(t *testing.T, cfg feed.BoardConfig) *feed.Board {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	board, err := feed.NewBoard(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = board.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return board
}

func waitChanged(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "board did not change")
	}
}

func TestBoard_RefreshDelivers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC))
	var gotURL atomic.Value
	board := startBoard(t, feed.BoardConfig{
		BaseURL: "https://example.com/query",
		Clock:   clock,
		Fetcher: earthquake.FetcherFunc(func(_ context.Context, url string) (string, error) {
			gotURL.Store(url)
			return twoQuakes, nil
		}),
	})

	assert.False(t, board.Ready())

	changed := board.Changed()
	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	waitChanged(t, changed)

	snap := board.Snapshot()
	require.Len(t, snap.Quakes, 2)
	assert.Equal(t, "Springfield", snap.Quakes[0].PrimaryLocation)
	assert.Equal(t, "6.1", snap.Quakes[0].MagnitudeText)
	assert.True(t, snap.Delivered)
	assert.False(t, snap.Loading)
	assert.Equal(t, "delivered", snap.State)
	require.NotNil(t, snap.LastDeliveredAt)
	assert.Equal(t, clock.Now(), *snap.LastDeliveredAt)
	assert.True(t, board.Ready())

	strongest := snap.Strongest()
	require.NotNil(t, strongest)
	assert.Equal(t, 7.4, strongest.Magnitude)

	assert.Equal(t, "https://example.com/query?format=geojson&limit=20&minmag=6&orderby=magnitude", gotURL.Load())
}

func TestBoard_RefreshWithQuery(t *testing.T) {
	var gotURL atomic.Value
	board := startBoard(t, feed.BoardConfig{
		BaseURL: "https://example.com/query",
		Fetcher: earthquake.FetcherFunc(func(_ context.Context, url string) (string, error) {
			gotURL.Store(url)
			return twoQuakes, nil
		}),
	})

	changed := board.Changed()
	q := earthquake.QueryConfig{MinMagnitude: "2.5", OrderBy: earthquake.OrderByTime, Limit: 5, Format: "geojson"}
	require.True(t, board.Refresh(q))
	waitChanged(t, changed)

	assert.Equal(t, "https://example.com/query?format=geojson&limit=5&minmag=2.5&orderby=time", gotURL.Load())
	assert.Equal(t, q, board.Snapshot().Query)
}

func TestBoard_RefreshWhileLoading(t *testing.T) {
	release := make(chan struct{})
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			<-release
			return twoQuakes, nil
		}),
	})

	changed := board.Changed()
	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	assert.False(t, board.Refresh(earthquake.QueryConfig{}))
	assert.True(t, board.Snapshot().Loading)

	close(release)
	waitChanged(t, changed)
	assert.Len(t, board.Snapshot().Quakes, 2)
}

func TestBoard_FailureEmptiesList(t *testing.T) {
	var fail atomic.Bool
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			if fail.Load() {
				return "", errors.New("connection refused")
			}
			return twoQuakes, nil
		}),
	})

	changed := board.Changed()
	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	waitChanged(t, changed)
	require.Len(t, board.Snapshot().Quakes, 2)

	fail.Store(true)
	changed = board.Changed()
	require.Eventually(t, func() bool { return board.Refresh(earthquake.QueryConfig{}) }, time.Second, 5*time.Millisecond)
	waitChanged(t, changed)

	snap := board.Snapshot()
	assert.True(t, snap.Empty())
	assert.Nil(t, snap.Strongest())
	assert.True(t, snap.Delivered)
}

func TestBoard_ResetClears(t *testing.T) {
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			return twoQuakes, nil
		}),
	})

	changed := board.Changed()
	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	waitChanged(t, changed)

	changed = board.Changed()
	board.Reset()
	waitChanged(t, changed)

	snap := board.Snapshot()
	assert.True(t, snap.Empty())
	assert.Equal(t, "idle", snap.State)
}

func TestNewBoard_InvalidBaseURL(t *testing.T) {
	_, err := feed.NewBoard(feed.BoardConfig{
		BaseURL: "not a url",
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) { return "", nil }),
	})
	assert.ErrorIs(t, err, earthquake.ErrInvalidBaseURL)
}

func TestBoard_WaitDelivered(t *testing.T) {
	release := make(chan struct{})
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			<-release
			return twoQuakes, nil
		}),
	})

	require.NoError(t, board.WaitDelivered(context.Background()))

	require.True(t, board.Refresh(earthquake.QueryConfig{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, board.WaitDelivered(ctx), context.DeadlineExceeded)

	close(release)
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, board.WaitDelivered(ctx))
	assert.Len(t, board.Snapshot().Quakes, 2)
}

func TestBoard_WaitDeliveredReturnsOnReset(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			<-release
			return twoQuakes, nil
		}),
	})

	require.True(t, board.Refresh(earthquake.QueryConfig{}))

	done := make(chan error, 1)
	go func() { done <- board.WaitDelivered(context.Background()) }()

	board.Reset()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, feed.ErrReset)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "WaitDelivered did not return after reset")
	}
	assert.True(t, board.Snapshot().Empty())
}

func largeFeed(n int) string {
	var sb strings.Builder
	sb.WriteString(`{"features":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"properties":{"mag":%d.5,"place":"%dkm N of Ridgecrest, CA","time":%d,"url":"https://example.com/%d"}}`,
			i%9, i, 1454124312220+int64(i), i)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func TestBoard_ResetDuringDeliveryClears(t *testing.T) {
	body := largeFeed(20000)

	for i := 0; i < 5; i++ {
		board := startBoard(t, feed.BoardConfig{
			Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
				return body, nil
			}),
		})

		require.True(t, board.Refresh(earthquake.QueryConfig{}))
		require.Eventually(t, func() bool {
			return board.Snapshot().State == earthquake.StateDelivered.String()
		}, 5*time.Second, time.Millisecond)

		board.Reset()
		assert.True(t, board.Snapshot().Empty(), "rows present right after reset")

		time.Sleep(50 * time.Millisecond)
		snap := board.Snapshot()
		assert.True(t, snap.Empty(), "rows reappeared after reset")
		assert.Equal(t, "idle", snap.State)
	}
}

func TestBoard_DrainingAfterResetWhileLoading(t *testing.T) {
	release := make(chan struct{})
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			<-release
			return twoQuakes, nil
		}),
	})

	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	board.Reset()

	snap := board.Snapshot()
	assert.Equal(t, feed.StateDraining, snap.State)
	assert.True(t, snap.Loading)
	assert.False(t, board.Refresh(earthquake.QueryConfig{}))

	close(release)
	require.Eventually(t, func() bool { return !board.Snapshot().Loading }, 2*time.Second, 5*time.Millisecond)

	snap = board.Snapshot()
	assert.Equal(t, "idle", snap.State)
	assert.True(t, snap.Empty())
	assert.True(t, board.Refresh(earthquake.QueryConfig{}))
}

func TestBoard_WaitDeliveredAfterLaterRefresh(t *testing.T) {
	board := startBoard(t, feed.BoardConfig{
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			return twoQuakes, nil
		}),
	})

	require.True(t, board.Refresh(earthquake.QueryConfig{}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, board.WaitDelivered(ctx))
	require.NoError(t, board.WaitDelivered(ctx))
}

func TestBoard_ControlAfterStop(t *testing.T) {
	board, err := feed.NewBoard(feed.BoardConfig{
		Logger: zerolog.Nop(),
		Fetcher: earthquake.FetcherFunc(func(context.Context, string) (string, error) {
			return twoQuakes, nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, board.Run(ctx), context.Canceled)

	assert.False(t, board.Refresh(earthquake.QueryConfig{}))
	board.Reset()
	assert.Equal(t, "idle", board.Snapshot().State)
}
