package handler

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/quakewatch/quakewatch/internal/api/models"
	"github.com/quakewatch/quakewatch/internal/api/response"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	board     Board
	registry  *resilience.Registry
	clock     clockwork.Clock
}

// NewOpsHandler creates a new OpsHandler. A nil clock uses the real clock.
func NewOpsHandler(version, buildTime string, board Board, registry *resilience.Registry, clock clockwork.Clock) *OpsHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		board:     board,
		registry:  registry,
		clock:     clock,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// board has received its first result, even an empty one.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.board.Ready() {
		response.ServiceUnavailable(w, r, "earthquake feed has not been loaded yet")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - feed and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.board.Snapshot()

	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Feed: models.FeedStatus{
			State:           snap.State,
			Loading:         snap.Loading,
			Delivered:       snap.Delivered,
			Count:           len(snap.Quakes),
			LastDeliveredAt: models.NewTimestamp(snap.LastDeliveredAt),
		},
		Upstreams: []models.UpstreamStatus{},
	}

	if h.registry != nil {
		for _, u := range h.registry.GetAllHealth() {
			us := models.UpstreamStatus{
				Name:           u.Name,
				Status:         upstreamStatus(u),
				BreakerEnabled: u.BreakerEnabled,
				CircuitState:   u.CircuitState.String(),
				LastSuccessAt:  models.NewTimestamp(u.LastSuccessAt),
				LastFailureAt:  models.NewTimestamp(u.LastFailureAt),
			}
			if u.LastError != "" {
				msg := u.LastError
				us.Message = &msg
			}
			status.Upstreams = append(status.Upstreams, us)
			status.Status = worst(status.Status, us.Status)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func upstreamStatus(u *resilience.UpstreamHealth) models.HealthStatus {
	switch u.Status() {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// worst returns the more severe of two statuses. A failing upstream only
// degrades the service since the last delivered list is still served.
func worst(current, upstream models.HealthStatus) models.HealthStatus {
	if upstream == models.HealthStatusOK || current == models.HealthStatusDegraded {
		return current
	}
	return models.HealthStatusDegraded
}
