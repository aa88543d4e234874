package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retainloop/core/internal/config"
	"github.com/retainloop/core/pkg/database/pool"
	"github.com/retainloop/core/pkg/handlers/cronjobs"
	"github.com/retainloop/core/pkg/handlers/health"
	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/middleware"
	"github.com/retainloop/core/pkg/models/api"
	"github.com/retainloop/core/pkg/scheduler"
)

// Server represents the operational API server. It exposes the job ledger
// read-only views a dashboard needs plus the enable/disable toggle.
type Server struct {
	router   *http.ServeMux
	port     string
	logger   *logger.Logger
	dbPool   *pgxpool.Pool
	handlers struct {
		health   *health.Handler
		cronjobs *cronjobs.Handler
	}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := testDatabaseConnection(dbPool, log); err != nil {
		dbPool.Close()
		return nil, err
	}

	ledger := scheduler.NewPostgresJobLedger(dbPool)

	server := &Server{
		router: http.NewServeMux(),
		port:   cfg.Server.Port,
		logger: log,
		dbPool: dbPool,
	}

	server.handlers.health = health.NewHandler(dbPool, log)
	server.handlers.cronjobs = cronjobs.NewHandler(ledger, log)

	server.setupRoutes()

	log.Info().
		Str("action", "db_connected").
		Msg("Database connection pool established")

	return server, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", middleware.CORS(s.handlers.health.HealthCheck))

	s.router.HandleFunc("/", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "Retainloop Ops API - OK"); err != nil {
			http.Error(w, "Failed to write response", http.StatusInternalServerError)
		}
	}))

	// Job ledger endpoints
	s.router.HandleFunc("/api/cron/jobs", middleware.CORS(s.handlers.cronjobs.List))
	s.router.HandleFunc("/api/cron/jobs/", middleware.CORS(s.handlers.cronjobs.Toggle)) // handles /api/cron/jobs/{name}/enabled

	// Connection pool visibility for dashboards
	s.router.HandleFunc("/api/system/db", middleware.CORS(s.handleDBStats))
}

// handleDBStats reports connection pool statistics
func (s *Server) handleDBStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	response := api.Response{Success: true, Data: pool.GetStats(s.dbPool)}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", "db_stats_failed").
			Msg("Failed to encode pool stats response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting ops API server")

	if err := http.ListenAndServe(":"+s.port, s.router); err != nil {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}

// Close gracefully shuts down the server and closes database connections
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// testDatabaseConnection tests the database connection with retry logic
func testDatabaseConnection(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}

	return nil
}
