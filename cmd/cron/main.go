package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/retainloop/core/internal/config"
	"github.com/retainloop/core/pkg/jobs"
	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/scheduler"
	"github.com/retainloop/core/pkg/services"
)

func main() {
	// Parse command line flags
	var (
		jobName = flag.String("job", "", "Run specific job once (cache-eviction, session-cleanup, winback-campaign, push-digest)")
		once    = flag.Bool("once", false, "Run job once and exit")
	)
	flag.Parse()

	logger.SetupLogger()
	cfg := config.Load()

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Build the shared ledger and make sure the cron_jobs table exists
	ledger := scheduler.NewPostgresJobLedger(db)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := ledger.Migrate(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to migrate job ledger: %v", err)
		}
	}

	// Initialize services
	cacheService := services.NewCacheService(db)
	sessionService := services.NewSessionService(db)
	winbackService := services.NewWinbackService(db)
	pushService := services.NewPushService(db)

	// Create scheduler
	sched := scheduler.New(ledger, &scheduler.Config{
		PollInterval:     cfg.Scheduler.PollInterval,
		StatementTimeout: cfg.Scheduler.StatementTimeout,
	})

	// Register jobs
	registered := []scheduler.Job{
		jobs.NewCacheEvictionJob(cacheService),
		jobs.NewSessionCleanupJob(sessionService),
		jobs.NewWinbackCampaignJob(winbackService),
		jobs.NewPushDigestJob(pushService),
	}
	for _, job := range registered {
		if err := sched.Register(job); err != nil {
			log.Fatalf("Failed to register job %s: %v", job.Name(), err)
		}
	}

	// Handle single job execution, bypassing the claim protocol
	if *once && *jobName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		for _, job := range registered {
			if job.Name() != *jobName {
				continue
			}
			log.Printf("Running job %s once...", job.Name())
			if err := job.Execute(ctx); err != nil {
				log.Fatalf("Failed to execute job %s: %v", job.Name(), err)
			}
			log.Printf("Job %s completed successfully", job.Name())
			return
		}
		log.Fatalf("Unknown job: %s. Available jobs: cache-eviction, session-cleanup, winback-campaign, push-digest", *jobName)
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Printf("Cron service started with %d jobs (instance %s)", len(sched.Jobs()), sched.InstanceID())

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cron service...")
	sched.Stop()
	log.Println("Cron service stopped")
}
