package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/weatherdash/weatherdash/internal/api/models"
	"github.com/weatherdash/weatherdash/internal/api/response"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version string
	pinger  Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version string, pinger Pinger) *OpsHandler {
	return &OpsHandler{version: version, pinger: pinger}
}

// HealthCheck handles GET /v1/ops/health. The store must answer for the
// service to report healthy.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			response.ServiceUnavailable(w, r, "store unreachable")
			return
		}
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  "ok",
		Time:    time.Now().UTC(),
		Version: h.version,
	})
}
