package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/api/middleware"
	"github.com/quakewatch/quakewatch/internal/api/models"
	"github.com/quakewatch/quakewatch/internal/api/response"
	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// maxRefreshBody bounds the refresh request body.
const maxRefreshBody = 4 << 10

// EarthquakeHandler serves the earthquake list and its admin actions.
type EarthquakeHandler struct {
	board  Board
	logger zerolog.Logger
}

// NewEarthquakeHandler creates a new EarthquakeHandler.
func NewEarthquakeHandler(board Board, logger zerolog.Logger) *EarthquakeHandler {
	return &EarthquakeHandler{board: board, logger: logger}
}

// List handles GET /v1/earthquakes.
func (h *EarthquakeHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.board.Snapshot()
	if snap.Quakes == nil {
		snap.Quakes = []earthquake.Display{}
	}

	response.JSON(w, r, http.StatusOK, models.EarthquakeList{
		Earthquakes:     snap.Quakes,
		Count:           len(snap.Quakes),
		Query:           models.NewQuery(snap.Query),
		State:           snap.State,
		Loading:         snap.Loading,
		LastDeliveredAt: models.NewTimestamp(snap.LastDeliveredAt),
	})
}

// Refresh handles POST /v1/earthquakes:refresh. Overrides come from the
// JSON body or, when absent there, from the minmag, orderby and limit query
// parameters. Fields left out keep the current query.
func (h *EarthquakeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefresh(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	q := h.board.Snapshot().Query
	if fieldErrs := applyRefresh(&q, req); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid refresh request", fieldErrs)
		return
	}

	if !h.board.Refresh(q) {
		detail := "an earthquake load is already in flight"
		if h.board.Snapshot().State == feed.StateDraining {
			detail = "the earthquake load dropped by the last reset is still finishing"
		}
		response.Conflict(w, r, detail)
		return
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Str("minmag", q.MinMagnitude).
		Str("orderby", q.OrderBy).
		Int("limit", q.Limit).
		Msg("earthquake refresh started")

	response.Accepted(w, r, models.RefreshAccepted{
		Status: "loading",
		Query:  models.NewQuery(q),
	})
}

// Reset handles POST /v1/earthquakes:reset.
func (h *EarthquakeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.board.Reset()
	h.logger.Info().Str("subject", middleware.GetSubject(r.Context())).Msg("earthquake list reset")
	response.NoContent(w, r)
}

func decodeRefresh(r *http.Request) (models.RefreshRequest, error) {
	var req models.RefreshRequest

	if r.Body != nil && r.Body != http.NoBody {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRefreshBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	}

	query := r.URL.Query()
	if v := query.Get("minmag"); v != "" && req.MinMagnitude == nil {
		req.MinMagnitude = &v
	}
	if v := query.Get("orderby"); v != "" && req.OrderBy == nil {
		req.OrderBy = &v
	}
	if v := query.Get("limit"); v != "" && req.Limit == nil {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("limit %q is not an integer", v)
		}
		req.Limit = &n
	}
	return req, nil
}

func applyRefresh(q *earthquake.QueryConfig, req models.RefreshRequest) []models.FieldError {
	var errs []models.FieldError

	if req.MinMagnitude != nil {
		if _, err := strconv.ParseFloat(*req.MinMagnitude, 64); err != nil {
			errs = append(errs, models.FieldError{Field: "minMagnitude", Message: "must be a number", Code: "INVALID"})
		} else {
			q.MinMagnitude = *req.MinMagnitude
		}
	}
	if req.OrderBy != nil {
		if !config.ValidOrderBy(*req.OrderBy) {
			errs = append(errs, models.FieldError{
				Field:   "orderBy",
				Message: "must be one of time, time-asc, magnitude, magnitude-asc",
				Code:    "INVALID",
			})
		} else {
			q.OrderBy = *req.OrderBy
		}
	}
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > config.MaxLimit {
			errs = append(errs, models.FieldError{
				Field:   "limit",
				Message: fmt.Sprintf("must be between 1 and %d", config.MaxLimit),
				Code:    "OUT_OF_RANGE",
			})
		} else {
			q.Limit = *req.Limit
		}
	}
	return errs
}
