/*
handlers.go - HTTP request handlers for the simulation runs API

PURPOSE:
  Implements all REST API endpoints. Each handler:
  1. Parses request (path params, query params, body)
  2. Runs or looks up simulation batches
  3. Returns JSON response (or CSV for table downloads)

ENDPOINT CATEGORIES:
  Runs:     Start a batch, list runs, get run with outcomes
  Results:  Full realization result, or one table as JSON or CSV
  Presets:  Named scenario parameter sets

ERROR HANDLING:
  All errors return JSON: {"error": "message", "details": "..."}
  HTTP status codes:
    - 400: Invalid request or inputs (bad parameters, short history)
    - 404: Run or realization not found
    - 409: Duplicate realization write
    - 500: Internal error (storage failure)

RUN EXECUTION:
  POST /api/runs runs the batch synchronously and stores every outcome
  before replying. A failed realization does not fail the request; it is
  reported in the run's outcomes with its error.

SEE ALSO:
  - dto.go: Request/response types
  - presets.go: Named parameter sets
  - scheduler.go: Runs the same batch on a cron schedule
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/water-finance/dataset"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/report"
	"github.com/warp/water-finance/rollover"
)

// maxRealizations bounds one HTTP-requested batch.
const maxRealizations = 1000

// RunDefaults fills any run setting a request leaves unset.
type RunDefaults struct {
	Label        string
	Start        finance.FiscalYear
	End          finance.FiscalYear
	Realizations int
	BaseSeed     int64
	Workers      int
	Params       finance.ScenarioParameters
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store    rollover.ResultStore
	Dataset  *dataset.Dataset
	Defaults RunDefaults
	Logger   zerolog.Logger

	// now and newID are replaced in tests.
	now   func() time.Time
	newID func() string
}

// NewHandler creates a new Handler.
func NewHandler(store rollover.ResultStore, ds *dataset.Dataset, defaults RunDefaults, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:    store,
		Dataset:  ds,
		Defaults: defaults,
		Logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// =============================================================================
// RUN EXECUTION
// =============================================================================

// Execute resolves req against the defaults, runs the batch, and stores it.
func (h *Handler) Execute(ctx context.Context, req CreateRunRequest, source string) (RunDTO, error) {
	params, err := ResolveParams(h.Defaults.Params, req.Preset, req.Params)
	if err != nil {
		return RunDTO{}, &requestError{err: err}
	}

	start, end := h.Defaults.Start, h.Defaults.End
	if req.StartYear != 0 {
		start = finance.FiscalYear(req.StartYear)
		if req.EndYear == 0 && end < start {
			end = start
		}
	}
	if req.EndYear != 0 {
		end = finance.FiscalYear(req.EndYear)
	}
	if end < start {
		return RunDTO{}, &requestError{err: fmt.Errorf("end year %s before start year %s", end, start)}
	}

	n := h.Defaults.Realizations
	if req.Realizations != 0 {
		n = req.Realizations
	}
	if n < 1 || n > maxRealizations {
		return RunDTO{}, &requestError{err: fmt.Errorf("realizations must be between 1 and %d, got %d", maxRealizations, n)}
	}
	seed := h.Defaults.BaseSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	workers := h.Defaults.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	label := req.Label
	if label == "" {
		label = h.Defaults.Label
	}

	run := rollover.Run{
		ID:        h.newID(),
		Label:     label,
		Source:    source,
		CreatedAt: h.now().UTC(),
		Start:     start,
		End:       end,
		BaseSeed:  seed,
		Params:    params,
	}
	log := h.Logger.With().Str("run_id", run.ID).Str("source", source).Logger()

	specs := h.Dataset.Specs(params, start, end, n, seed)
	batch := rollover.RunBatch(ctx, h.Dataset.Inputs, specs, rollover.BatchOptions{Workers: workers, Logger: log})

	if err := rollover.SaveBatch(ctx, h.Store, run, batch); err != nil {
		return RunDTO{}, err
	}
	run.Realizations = len(batch.Outcomes)
	run.Failed = batch.Failed()

	dto := RunDTO{Run: run}
	for _, o := range batch.Outcomes {
		dto.Outcomes = append(dto.Outcomes, rollover.RecordOf(run.ID, o))
	}
	log.Info().
		Int("realizations", run.Realizations).
		Int("failed", run.Failed).
		Dur("elapsed", batch.Elapsed).
		Msg("run stored")
	return dto, nil
}

// requestError marks a failure caused by the request itself.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// =============================================================================
// RUN ENDPOINTS
// =============================================================================

// CreateRun runs and stores a new batch.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	dto, err := h.Execute(r.Context(), req, "api")
	if err != nil {
		h.fail(w, "failed to run batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// ListRuns returns every stored run header, newest first.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.Runs(r.Context())
	if err != nil {
		h.fail(w, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []rollover.Run{}
	}
	writeJSON(w, http.StatusOK, RunListDTO{Runs: runs})
}

// GetRun returns a run header with every realization outcome.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.Store.Run(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to get run", err)
		return
	}
	outcomes, err := h.Store.Outcomes(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to get outcomes", err)
		return
	}
	writeJSON(w, http.StatusOK, RunDTO{Run: run, Outcomes: outcomes})
}

// =============================================================================
// RESULT ENDPOINTS
// =============================================================================

// GetResult returns every table of one realization.
// GET /api/runs/{id}/realizations/{n}
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetTable returns one table of one realization. A ".csv" suffix on the
// table name, or ?format=csv, switches the reply to CSV.
// GET /api/runs/{id}/realizations/{n}/{table}
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	asCSV := r.URL.Query().Get("format") == "csv"
	if trimmed, found := strings.CutSuffix(name, ".csv"); found {
		name, asCSV = trimmed, true
	}
	table, err := report.ParseTable(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid table", err.Error())
		return
	}

	res, ok := h.result(w, r)
	if !ok {
		return
	}

	if asCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d-%s.csv", res.RunID, res.Index, table)))
		if err := report.WriteTable(w, table, []*rollover.Result{res.Result}); err != nil {
			h.Logger.Error().Err(err).Str("table", string(table)).Msg("write csv")
		}
		return
	}

	var body any
	switch table {
	case report.Budgets:
		body = res.Budgets
	case report.Actuals:
		body = res.Actuals
	case report.Metrics:
		body = res.Metrics
	case report.DebtIssues:
		body = res.DebtIssues
	case report.Sales:
		body = res.Sales
	}
	writeJSON(w, http.StatusOK, body)
}

type storedResult struct {
	RunID string `json:"run_id"`
	*rollover.Result
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) (storedResult, bool) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid realization index", chi.URLParam(r, "n"))
		return storedResult{}, false
	}
	res, err := h.Store.Result(r.Context(), id, index)
	if err != nil {
		h.fail(w, "failed to get result", err)
		return storedResult{}, false
	}
	return storedResult{RunID: id, Result: res}, true
}

// =============================================================================
// PRESET ENDPOINTS
// =============================================================================

// ListPresets returns every named parameter set.
// GET /api/presets
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Presets())
}

// GetPreset returns one named parameter set.
// GET /api/presets/{id}
func (h *Handler) GetPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, p := range Presets() {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "preset not found", id)
}

// =============================================================================
// HELPERS
// =============================================================================

// fail maps err onto a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), finance.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err.Error())
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err.Error())
	case errors.Is(err, finance.ErrDuplicateRealization):
		writeError(w, http.StatusConflict, msg, err.Error())
	default:
		h.Logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, msg, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
