package cronjobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/models/api"
	"github.com/retainloop/core/pkg/scheduler"
	"github.com/retainloop/core/pkg/utils"
)

// Handler exposes the job ledger for operational dashboards
type Handler struct {
	ledger scheduler.JobLedger
	logger *logger.Logger
}

// NewHandler creates a new cron jobs handler
func NewHandler(ledger scheduler.JobLedger, log *logger.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: log,
	}
}

// List handles GET /api/cron/jobs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	rows, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "ledger_list_failed").
			Msg("Failed to list job ledger")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	jobs := make([]api.CronJobResponse, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, api.CronJobResponse{
			Name:              row.Name,
			IntervalMs:        row.IntervalMs,
			Enabled:           row.Enabled,
			LastRunAt:         row.LastRunAt,
			LastRunDurationMs: row.LastRunDurationMs,
			LastError:         row.LastError,
			UpdatedAt:         row.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{Success: true, Data: jobs}); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "encode_failed").
			Msg("Failed to encode jobs response")
		return
	}

	h.logger.Debug().
		Str("action", "ledger_list").
		Int("job_count", len(jobs)).
		Dur("duration", time.Since(start)).
		Msg("Listed job ledger")
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Toggle handles POST /api/cron/jobs/{name}/enabled
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/cron/jobs/{name}/enabled
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[4] != "enabled" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	// Ledger keys are slugs, so operators can pass the display name
	name := utils.JobSlug(parts[3])

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.ledger.SetEnabled(r.Context(), name, req.Enabled); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error().
			Err(err).
			Str("job_name", name).
			Str("action", "toggle_failed").
			Msg("Failed to toggle job")
		http.Error(w, "Failed to toggle job", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("job_name", name).
		Bool("enabled", req.Enabled).
		Str("action", "job_toggled").
		Msg("Job enabled flag changed via API")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{Success: true, Message: "job updated"}); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "encode_failed").
			Msg("Failed to encode toggle response")
	}
}
