package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// CronJobResponse represents one job ledger row in API responses
type CronJobResponse struct {
	Name              string     `json:"name"`
	IntervalMs        int64      `json:"interval_ms"`
	Enabled           bool       `json:"enabled"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastRunDurationMs *int64     `json:"last_run_duration_ms,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Response represents a general API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}
