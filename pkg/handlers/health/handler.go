package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/models/api"
)

// Pinger reports whether the database behind the job ledger is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles health check requests
type Handler struct {
	db     Pinger
	logger *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(db Pinger, log *logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log,
	}
}

// HealthCheck handles the /health endpoint. The process alone being up is
// not enough: every scheduler operation goes through the job ledger, so
// the check reports degraded when the database is unreachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := "ok"
	statusCode := http.StatusOK
	dbHealthy := true

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_db_unreachable").
			Str("endpoint", "/health").
			Msg("Database ping failed during health check")
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
		dbHealthy = false
	}

	response := api.HealthResponse{
		Status:    status,
		Database:  dbHealthy,
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("status_code", statusCode).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
