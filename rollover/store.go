/*
store.go - Persistence interface for simulation runs

PURPOSE:
  Defines the boundary between the rollover engine and result storage.
  A run is a batch of realizations under one parameter set; each
  realization's outcome is written exactly once.

APPEND-ONLY CONTRACT:
  - CreateRun writes the run header once
  - AppendOutcome writes one realization's outcome once; a second write
    for the same (run, realization) returns ErrDuplicateRealization
  - There is no Update or Delete

IMPLEMENTATIONS:
  - store/memory: In-memory for tests and the CLI
  - store/sqlite: SQLite for the server

SEE ALSO:
  - batch.go: Produces the outcomes stored here
  - api/handlers.go: Reads runs back over HTTP
*/
package rollover

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/water-finance/finance"
)

// Run is the header of one stored batch.
type Run struct {
	ID           string                     `json:"id"`
	Label        string                     `json:"label"`
	Source       string                     `json:"source"`
	CreatedAt    time.Time                  `json:"created_at"`
	Start        finance.FiscalYear         `json:"start"`
	End          finance.FiscalYear         `json:"end"`
	BaseSeed     int64                      `json:"base_seed"`
	Realizations int                        `json:"realizations"`
	Failed       int                        `json:"failed"`
	Params       finance.ScenarioParameters `json:"params"`
}

// OutcomeRecord is the stored view of one realization's outcome.
type OutcomeRecord struct {
	RunID   string  `json:"run_id"`
	Index   int     `json:"index"`
	Seed    int64   `json:"seed"`
	Error   string  `json:"error,omitempty"`
	Summary Summary `json:"summary"`
}

// Succeeded reports whether the realization produced a result.
func (o OutcomeRecord) Succeeded() bool { return o.Error == "" }

// ResultStore persists runs and their realization outcomes.
type ResultStore interface {
	// CreateRun writes a run header. Returns an error if the ID exists.
	CreateRun(ctx context.Context, run Run) error

	// AppendOutcome writes one realization's outcome.
	AppendOutcome(ctx context.Context, runID string, o Outcome) error

	// Run returns the header for id, or ErrRunNotFound.
	Run(ctx context.Context, id string) (Run, error)

	// Runs returns every run header, newest first.
	Runs(ctx context.Context) ([]Run, error)

	// Outcomes returns the outcome records of a run, by realization index.
	Outcomes(ctx context.Context, runID string) ([]OutcomeRecord, error)

	// Result returns the full tables of one successful realization.
	Result(ctx context.Context, runID string, index int) (*Result, error)
}

// RecordOf converts an outcome into its stored view.
func RecordOf(runID string, o Outcome) OutcomeRecord {
	rec := OutcomeRecord{RunID: runID, Index: o.Index, Seed: o.Seed}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if o.Result != nil {
		rec.Summary = o.Result.Summary
	}
	return rec
}

// SaveBatch writes run and every outcome of batch.
func SaveBatch(ctx context.Context, store ResultStore, run Run, batch BatchResult) error {
	run.Realizations = len(batch.Outcomes)
	run.Failed = batch.Failed()
	if err := store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	for _, o := range batch.Outcomes {
		if err := store.AppendOutcome(ctx, run.ID, o); err != nil {
			return fmt.Errorf("run %s realization %d: %w", run.ID, o.Index, err)
		}
	}
	return nil
}
