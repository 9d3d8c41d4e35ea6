package handler

import (
	"context"
	"net/http"

	"github.com/weatherdash/weatherdash/internal/api/models"
	"github.com/weatherdash/weatherdash/internal/api/response"
	"github.com/weatherdash/weatherdash/internal/scheduler"
)

// Ticker runs one ingestion round on demand.
type Ticker interface {
	Tick(ctx context.Context) *scheduler.TickReport
}

// IngestHandler triggers ingestion ticks manually.
type IngestHandler struct {
	ticker Ticker
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ticker Ticker) *IngestHandler {
	return &IngestHandler{ticker: ticker}
}

// Tick handles POST /v1/ingest/tick. The report mirrors what the background
// loop would have produced.
func (h *IngestHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report := h.ticker.Tick(r.Context())

	result := models.TickReport{
		StartedAt:  report.StartedAt,
		DurationMs: report.Duration.Milliseconds(),
		Committed:  report.Committed,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Purged:     report.Purged,
	}
	for _, kr := range report.Results {
		entry := models.TickKeyResult{
			City:    kr.Key.City,
			Country: kr.Key.Country,
			Outcome: string(kr.Outcome),
		}
		if kr.Err != nil {
			entry.Error = kr.Err.Error()
		}
		result.Results = append(result.Results, entry)
	}

	response.JSON(w, r, http.StatusOK, result)
}
