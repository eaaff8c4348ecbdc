/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the water-finance simulation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (YAML, .env, FINSIM_* vars)
  2. Configure logging
  3. Load the input dataset
  4. Initialize SQLite store
  5. Create API handler and router
  6. Start the batch scheduler if a cron expression is set
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: config.yaml, optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for a running batch
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/finsim.db"

  # Nightly batch of 200 realizations
  FINSIM_BATCH_CRON="0 0 2 * * *" FINSIM_REALIZATIONS=200 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and environment overrides
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warp/water-finance/api"
	"github.com/warp/water-finance/config"
	"github.com/warp/water-finance/dataset"
	"github.com/warp/water-finance/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Data.SQLitePath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	cfg.ConfigureLogging(os.Stdout)

	ds, err := dataset.Load(cfg.Data.DatasetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Data.DatasetPath).Msg("failed to load dataset")
	}

	// Initialize store
	store, err := sqlite.New(cfg.Data.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Data.SQLitePath).Msg("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, ds, api.RunDefaults{
		Label:        cfg.Run.Label,
		Start:        cfg.StartYear(),
		End:          cfg.EndYear(),
		Realizations: cfg.Run.Realizations,
		BaseSeed:     cfg.Run.BaseSeed,
		Workers:      cfg.Run.Workers,
		Params:       cfg.ScenarioParameters(),
	}, log.Logger)
	router := api.NewRouter(handler)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var scheduler *api.BatchScheduler
	if cfg.Schedule.BatchCron != "" {
		scheduler = api.NewBatchScheduler(ctx, handler, log.Logger)
		if err := scheduler.Register(cfg.Schedule.BatchCron); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
		scheduler.Start()
	}

	// Batches run inside the request, so writes get a long timeout.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("dataset", cfg.Data.DatasetPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
