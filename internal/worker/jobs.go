package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// Job types accepted on the feed job subscription.
const (
	JobFeedRefresh = "feed_refresh"
	JobFeedReset   = "feed_reset"
)

// Job errors. Malformed and unknown jobs are never retried.
var (
	ErrMalformedJob = errors.New("malformed job message")
	ErrUnknownJob   = errors.New("unknown job type")
)

// JobMessage is a feed job. Query fields are optional overrides for
// feed_refresh; Wait makes the job complete only once the result has been
// delivered.
type JobMessage struct {
	JobType      string `json:"job_type"`
	MinMagnitude string `json:"min_magnitude,omitempty"`
	OrderBy      string `json:"order_by,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Wait         bool   `json:"wait,omitempty"`
}

// JobHandler applies feed jobs to a board.
type JobHandler struct {
	board       FeedBoard
	waitTimeout time.Duration
	logger      zerolog.Logger
}

// NewJobHandler creates a job handler. waitTimeout bounds jobs with Wait set
// (default: 1 minute).
func NewJobHandler(board FeedBoard, waitTimeout time.Duration, logger zerolog.Logger) *JobHandler {
	if waitTimeout <= 0 {
		waitTimeout = time.Minute
	}
	return &JobHandler{board: board, waitTimeout: waitTimeout, logger: logger}
}

// Handle decodes and runs one job.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedJob, err.Error())
	}

	switch msg.JobType {
	case JobFeedRefresh:
		return h.refresh(ctx, msg)
	case JobFeedReset:
		h.board.Reset()
		h.logger.Info().Msg("earthquake list reset by job")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (h *JobHandler) refresh(ctx context.Context, msg JobMessage) error {
	q, err := h.query(msg)
	if err != nil {
		return err
	}

	if !h.board.Refresh(q) {
		h.logger.Info().Msg("earthquake load already in flight, refresh job folded into it")
		return nil
	}
	if !msg.Wait {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()
	err = h.board.WaitDelivered(waitCtx)
	if errors.Is(err, feed.ErrReset) {
		h.logger.Info().Msg("refresh job cleared by reset before delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("waiting for delivery: %w", err)
	}

	h.logger.Info().Int("count", len(h.board.Snapshot().Quakes)).Msg("refresh job delivered")
	return nil
}

// query merges the message overrides into the board's current query. The
// zero QueryConfig means no override.
func (h *JobHandler) query(msg JobMessage) (earthquake.QueryConfig, error) {
	if msg.MinMagnitude == "" && msg.OrderBy == "" && msg.Limit == 0 {
		return earthquake.QueryConfig{}, nil
	}

	q := h.board.Snapshot().Query
	if msg.MinMagnitude != "" {
		if _, err := strconv.ParseFloat(msg.MinMagnitude, 64); err != nil {
			return q, fmt.Errorf("%w: min_magnitude %q is not a number", ErrMalformedJob, msg.MinMagnitude)
		}
		q.MinMagnitude = msg.MinMagnitude
	}
	if msg.OrderBy != "" {
		if !config.ValidOrderBy(msg.OrderBy) {
			return q, fmt.Errorf("%w: order_by %q", ErrMalformedJob, msg.OrderBy)
		}
		q.OrderBy = msg.OrderBy
	}
	if msg.Limit != 0 {
		if msg.Limit < 1 || msg.Limit > config.MaxLimit {
			return q, fmt.Errorf("%w: limit %d out of range", ErrMalformedJob, msg.Limit)
		}
		q.Limit = msg.Limit
	}
	return q, nil
}
