/*
main.go - Batch simulation command

PURPOSE:
  Runs a batch of realizations from the command line and writes every
  output table as CSV, optionally storing the run in SQLite as well.

COMMAND-LINE FLAGS:
  -config        YAML config path (default: config.yaml, optional)
  -dataset       Input dataset path, overrides config
  -out           Output directory, overrides config
  -start, -end   Fiscal years, override config
  -n             Number of realizations, overrides config
  -seed          Base seed, overrides config
  -workers       Concurrent realizations, overrides config
  -save          Also store the run in the configured SQLite database

OUTPUT:
  <out>/<run id>/budgets.csv, actuals.csv, metrics.csv, debt_issues.csv,
  sales.csv and summary.csv.

EXIT STATUS:
  0 when every realization succeeded, 2 when some failed, 1 on setup errors.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/warp/water-finance/config"
	"github.com/warp/water-finance/dataset"
	"github.com/warp/water-finance/report"
	"github.com/warp/water-finance/rollover"
	"github.com/warp/water-finance/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML config path")
	datasetPath := flag.String("dataset", "", "input dataset path")
	outDir := flag.String("out", "", "output directory")
	start := flag.Int("start", 0, "first fiscal year")
	end := flag.Int("end", 0, "last fiscal year")
	n := flag.Int("n", 0, "number of realizations")
	seed := flag.Int64("seed", 0, "base seed (0 keeps config)")
	workers := flag.Int("workers", 0, "concurrent realizations")
	save := flag.Bool("save", false, "store the run in SQLite")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *datasetPath != "" {
		cfg.Data.DatasetPath = *datasetPath
	}
	if *outDir != "" {
		cfg.Data.OutputDir = *outDir
	}
	if *start != 0 {
		cfg.Run.StartYear = *start
		if *end == 0 && cfg.Run.EndYear < *start {
			cfg.Run.EndYear = *start
		}
	}
	if *end != 0 {
		cfg.Run.EndYear = *end
	}
	if *n != 0 {
		cfg.Run.Realizations = *n
	}
	if *seed != 0 {
		cfg.Run.BaseSeed = *seed
	}
	if *workers != 0 {
		cfg.Run.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	cfg.ConfigureLogging(os.Stderr)

	ds, err := dataset.Load(cfg.Data.DatasetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Data.DatasetPath).Msg("failed to load dataset")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := rollover.Run{
		ID:        uuid.NewString(),
		Label:     cfg.Run.Label,
		Source:    "cli",
		CreatedAt: time.Now().UTC(),
		Start:     cfg.StartYear(),
		End:       cfg.EndYear(),
		BaseSeed:  cfg.Run.BaseSeed,
		Params:    cfg.ScenarioParameters(),
	}
	logger := log.With().Str("run_id", run.ID).Logger()

	specs := ds.Specs(run.Params, run.Start, run.End, cfg.Run.Realizations, run.BaseSeed)
	batch := rollover.RunBatch(ctx, ds.Inputs, specs, rollover.BatchOptions{Workers: cfg.Run.Workers, Logger: logger})

	dir := filepath.Join(cfg.Data.OutputDir, run.ID)
	if err := report.WriteDir(dir, run.ID, batch); err != nil {
		logger.Fatal().Err(err).Msg("failed to write report")
	}
	logger.Info().Str("dir", dir).Msg("report written")

	if *save {
		store, err := sqlite.New(cfg.Data.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open database")
		}
		err = rollover.SaveBatch(ctx, store, run, batch)
		store.Close()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to store run")
		}
		logger.Info().Str("db", cfg.Data.SQLitePath).Msg("run stored")
	}

	if batch.Failed() > 0 {
		logger.Warn().Int("failed", batch.Failed()).Int("realizations", len(batch.Outcomes)).Msg("some realizations failed")
		os.Exit(2)
	}
}
