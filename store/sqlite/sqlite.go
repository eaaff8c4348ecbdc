/*
Package sqlite provides a SQLite-backed rollover.ResultStore.

PURPOSE:
  Persists simulation runs and the five output tables of every
  realization (Budget, Actuals, FinancialMetrics, DebtIssue,
  WaterDeliverySales) so the API can serve past runs after a restart.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements anywhere
  - UNIQUE(run_id, realization) on realizations rejects a second write
    with finance.ErrDuplicateRealization
  - One realization's rows are written in a single SQL transaction

KEY TABLES:
  runs:          Run headers, parameters as JSON
  realizations:  One row per (run, realization): seed, error, summary
  budgets, actuals, metrics, debt_issues, sales:
                 Per-year rows; the record itself is stored as JSON,
                 with the columns worth filtering on broken out

WAL MODE:
  Opened with WAL so API readers don't block a batch being written.

USAGE:
  store, err := sqlite.New("./data/finsim.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer store.Close()

SEE ALSO:
  - rollover/store.go: Interface definition
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// Store implements rollover.ResultStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		start_year INTEGER NOT NULL,
		end_year INTEGER NOT NULL,
		base_seed INTEGER NOT NULL,
		realizations INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS realizations (
		run_id TEXT NOT NULL REFERENCES runs(id),
		realization INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		error TEXT,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(run_id, realization)
	);

	CREATE TABLE IF NOT EXISTS budgets (
		run_id TEXT NOT NULL,
		realization INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		uniform_rate TEXT NOT NULL,
		annual_estimate TEXT NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, realization, fiscal_year)
	);

	CREATE TABLE IF NOT EXISTS actuals (
		run_id TEXT NOT NULL,
		realization INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		gross_revenues TEXT NOT NULL,
		net_revenues TEXT NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, realization, fiscal_year)
	);

	CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL,
		realization INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		debt_covenant_ratio TEXT NOT NULL,
		rate_covenant_ratio TEXT NOT NULL,
		final_budget_failure BOOLEAN NOT NULL DEFAULT FALSE,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, realization, fiscal_year)
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_failure
		ON metrics(run_id, final_budget_failure);

	CREATE TABLE IF NOT EXISTS debt_issues (
		run_id TEXT NOT NULL,
		realization INTEGER NOT NULL,
		issue_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		issue_year INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, realization, issue_id)
	);

	CREATE TABLE IF NOT EXISTS sales (
		run_id TEXT NOT NULL,
		realization INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		member TEXT NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, realization, fiscal_year, month, member)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// CreateRun writes a run header.
func (s *Store) CreateRun(ctx context.Context, run rollover.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, label, source, start_year, end_year, base_seed, realizations, failed, params_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Label, run.Source, int(run.Start), int(run.End), run.BaseSeed,
		run.Realizations, run.Failed, string(paramsJSON), created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Run returns one run header.
func (s *Store) Run(ctx context.Context, id string) (rollover.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.queryRuns(ctx, `WHERE id = ?`, id)
	if err != nil {
		return rollover.Run{}, err
	}
	if len(runs) == 0 {
		return rollover.Run{}, finance.ErrRunNotFound
	}
	return runs[0], nil
}

// Runs returns every run header, newest first.
func (s *Store) Runs(ctx context.Context) ([]rollover.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRuns(ctx, ``)
}

func (s *Store) queryRuns(ctx context.Context, where string, args ...any) ([]rollover.Run, error) {
	query := `
		SELECT id, label, source, start_year, end_year, base_seed, realizations, failed, params_json, created_at
		FROM runs ` + where + `
		ORDER BY created_at DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []rollover.Run
	for rows.Next() {
		var (
			run                 rollover.Run
			start, end          int
			paramsJSON, created string
		)
		if err := rows.Scan(&run.ID, &run.Label, &run.Source, &start, &end, &run.BaseSeed,
			&run.Realizations, &run.Failed, &paramsJSON, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Start, run.End = finance.FiscalYear(start), finance.FiscalYear(end)
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of run %s: %w", run.ID, err)
		}
		run.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// OUTCOMES
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendOutcome writes one realization and, if it succeeded, its tables.
func (s *Store) AppendOutcome(ctx context.Context, runID string, o rollover.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return finance.ErrRunNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := rollover.RecordOf(runID, o)
	summaryJSON, _ := json.Marshal(rec.Summary)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO realizations (run_id, realization, seed, error, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, rec.Index, rec.Seed, nullString(rec.Error), string(summaryJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrDuplicateRealization
		}
		return fmt.Errorf("failed to insert realization: %w", err)
	}

	if o.Err == nil && o.Result != nil {
		if err := s.appendTables(ctx, tx, runID, o.Result); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) appendTables(ctx context.Context, db execer, runID string, res *rollover.Result) error {
	idx := res.Index
	for _, b := range res.Budgets {
		if err := insertRecord(ctx, db, `INSERT INTO budgets
			(run_id, realization, fiscal_year, uniform_rate, annual_estimate, record_json) VALUES (?, ?, ?, ?, ?, ?)`,
			b, runID, idx, int(b.FiscalYear), b.UniformRate.String(), b.AnnualEstimate.String()); err != nil {
			return fmt.Errorf("budget %s: %w", b.FiscalYear, err)
		}
	}
	for _, a := range res.Actuals {
		if err := insertRecord(ctx, db, `INSERT INTO actuals
			(run_id, realization, fiscal_year, gross_revenues, net_revenues, record_json) VALUES (?, ?, ?, ?, ?, ?)`,
			a, runID, idx, int(a.FiscalYear), a.GrossRevenues.String(), a.NetRevenues.String()); err != nil {
			return fmt.Errorf("actuals %s: %w", a.FiscalYear, err)
		}
	}
	for _, m := range res.Metrics {
		if err := insertRecord(ctx, db, `INSERT INTO metrics
			(run_id, realization, fiscal_year, debt_covenant_ratio, rate_covenant_ratio, final_budget_failure, record_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m, runID, idx, int(m.FiscalYear), m.DebtCovenantRatio.String(), m.RateCovenantRatio.String(), m.FinalBudgetFailure); err != nil {
			return fmt.Errorf("metrics %s: %w", m.FiscalYear, err)
		}
	}
	for _, d := range res.DebtIssues {
		if err := insertRecord(ctx, db, `INSERT INTO debt_issues
			(run_id, realization, issue_id, project_id, issue_year, record_json) VALUES (?, ?, ?, ?, ?, ?)`,
			d, runID, idx, d.ID, int(d.ProjectID), int(d.IssueYear)); err != nil {
			return fmt.Errorf("debt issue %d: %w", d.ID, err)
		}
	}
	for _, row := range res.Sales {
		if err := insertRecord(ctx, db, `INSERT INTO sales
			(run_id, realization, fiscal_year, month, member, record_json) VALUES (?, ?, ?, ?, ?, ?)`,
			row, runID, idx, int(row.FiscalYear), row.Month, string(row.Member)); err != nil {
			return fmt.Errorf("sales %s/%d/%s: %w", row.FiscalYear, row.Month, row.Member, err)
		}
	}
	return nil
}

// insertRecord runs query with args followed by record encoded as JSON.
func insertRecord(ctx context.Context, db execer, query string, record any, args ...any) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = db.ExecContext(ctx, query, append(args, string(recordJSON))...)
	return err
}

// Outcomes returns the outcome records of a run.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]rollover.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, finance.ErrRunNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT realization, seed, error, summary_json
		FROM realizations
		WHERE run_id = ?
		ORDER BY realization ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query realizations: %w", err)
	}
	defer rows.Close()

	var result []rollover.OutcomeRecord
	for rows.Next() {
		var (
			rec         = rollover.OutcomeRecord{RunID: runID}
			errText     sql.NullString
			summaryJSON string
		)
		if err := rows.Scan(&rec.Index, &rec.Seed, &errText, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan realization: %w", err)
		}
		rec.Error = errText.String
		if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Result rebuilds one realization's tables.
func (s *Store) Result(ctx context.Context, runID string, index int) (*rollover.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		seed        int64
		errText     sql.NullString
		summaryJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seed, error, summary_json FROM realizations WHERE run_id = ? AND realization = ?
	`, runID, index).Scan(&seed, &errText, &summaryJSON)
	if err == sql.ErrNoRows || (err == nil && errText.Valid) {
		return nil, fmt.Errorf("realization %d: %w", index, finance.ErrRealizationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query realization: %w", err)
	}

	var run rollover.Run
	runs, err := s.queryRuns(ctx, `WHERE id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, finance.ErrRunNotFound
	}
	run = runs[0]

	res := &rollover.Result{Index: index, Seed: seed, Start: run.Start, End: run.End}
	if err := json.Unmarshal([]byte(summaryJSON), &res.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	if err := queryRecords(ctx, s.db, &res.Budgets, `SELECT record_json FROM budgets WHERE run_id = ? AND realization = ? ORDER BY fiscal_year`, runID, index); err != nil {
		return nil, err
	}
	if err := queryRecords(ctx, s.db, &res.Actuals, `SELECT record_json FROM actuals WHERE run_id = ? AND realization = ? ORDER BY fiscal_year`, runID, index); err != nil {
		return nil, err
	}
	if err := queryRecords(ctx, s.db, &res.Metrics, `SELECT record_json FROM metrics WHERE run_id = ? AND realization = ? ORDER BY fiscal_year`, runID, index); err != nil {
		return nil, err
	}
	if err := queryRecords(ctx, s.db, &res.DebtIssues, `SELECT record_json FROM debt_issues WHERE run_id = ? AND realization = ? ORDER BY issue_id`, runID, index); err != nil {
		return nil, err
	}
	if err := queryRecords(ctx, s.db, &res.Sales, `SELECT record_json FROM sales WHERE run_id = ? AND realization = ? ORDER BY fiscal_year, month, member`, runID, index); err != nil {
		return nil, err
	}
	return res, nil
}

// queryRecords decodes every record_json row into out.
func queryRecords[T any](ctx context.Context, db *sql.DB, out *[]T, query string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		*out = append(*out, rec)
	}
	return rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
