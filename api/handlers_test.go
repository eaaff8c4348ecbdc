/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Running and storing a batch (CreateRun)
- Preset and parameter override resolution
- Run, result and table lookups, including CSV downloads
- Error status mapping
*/
package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/dataset"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
	"github.com/warp/water-finance/store/memory"
)

func newTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	ds, err := dataset.Load("../dataset/testdata/minimal.yaml")
	require.NoError(t, err)

	h := NewHandler(memory.New(), ds, RunDefaults{
		Label:        "test",
		Start:        2021,
		End:          2022,
		Realizations: 2,
		BaseSeed:     42,
		Workers:      2,
		Params:       finance.DefaultScenarioParameters(),
	}, zerolog.Nop())

	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return h, NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateRun_StoresEveryOutcome(t *testing.T) {
	// GIVEN: A handler over the minimal dataset
	_, router := newTestHandler(t)

	// WHEN: Requesting a run with defaults
	rec := do(t, router, http.MethodPost, "/api/runs", CreateRunRequest{})

	// THEN: Both realizations ran and were stored
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "api", run.Source)
	assert.Equal(t, 2, run.Realizations)
	assert.Equal(t, 0, run.Failed)
	require.Len(t, run.Outcomes, 2)
	for i, o := range run.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.True(t, o.Succeeded(), o.Error)
		assert.Equal(t, 2, o.Summary.Years)
	}

	// AND: The run is listed and readable
	list := decode[RunListDTO](t, do(t, router, http.MethodGet, "/api/runs", nil))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "run-1", list.Runs[0].ID)

	got := decode[RunDTO](t, do(t, router, http.MethodGet, "/api/runs/run-1", nil))
	assert.Len(t, got.Outcomes, 2)
	assert.Equal(t, finance.FiscalYear(2021), got.Start)
	assert.Equal(t, finance.FiscalYear(2022), got.End)
}

func TestCreateRun_SeedMakesRunsRepeatable(t *testing.T) {
	_, router := newTestHandler(t)
	seed := int64(7)

	first := decode[RunDTO](t, do(t, router, http.MethodPost, "/api/runs", CreateRunRequest{Seed: &seed, Realizations: 1}))
	second := decode[RunDTO](t, do(t, router, http.MethodPost, "/api/runs", CreateRunRequest{Seed: &seed, Realizations: 1}))

	require.Len(t, first.Outcomes, 1)
	require.Len(t, second.Outcomes, 1)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.Outcomes[0].Summary.MinDebtCovenantRatio.Equal(second.Outcomes[0].Summary.MinDebtCovenantRatio))
	assert.True(t, first.Outcomes[0].Summary.UnallocatedDeficit.Equal(second.Outcomes[0].Summary.UnallocatedDeficit))
}

func TestCreateRun_PresetAndOverrides(t *testing.T) {
	// GIVEN: The managed-rate preset with one decision variable overridden
	_, router := newTestHandler(t)
	req := CreateRunRequest{
		Preset:       "managed-rate",
		Realizations: 1,
		Params:       json.RawMessage(`{"decisions": {"unencumbered_fraction": "0.05"}}`),
	}

	// WHEN: Running it
	rec := do(t, router, http.MethodPost, "/api/runs", req)

	// THEN: The stored parameters merge the override over the preset
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.True(t, run.Params.KeepUniformRateStable)
	assert.Equal(t, "0.05", run.Params.Decisions.UnencumberedFraction.String())
	assert.Equal(t, "1.25", run.Params.Decisions.RateCovenantThreshold.String())
}

func TestCreateRun_RejectsBadRequests(t *testing.T) {
	_, router := newTestHandler(t)

	tests := []struct {
		name string
		body any
	}{
		{"unknown preset", CreateRunRequest{Preset: "drought"}},
		{"fraction out of range", CreateRunRequest{Params: json.RawMessage(`{"decisions": {"rr_floor_fraction": "1.5"}}`)}},
		{"inverted rate bounds", CreateRunRequest{Params: json.RawMessage(`{"decisions": {"rate_increase_high_bound": "0.01", "rate_increase_low_bound": "0.02"}}`)}},
		{"end before start", CreateRunRequest{StartYear: 2022, EndYear: 2021}},
		{"too many realizations", CreateRunRequest{Realizations: maxRealizations + 1}},
		{"malformed body", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}

	// Nothing was stored
	list := decode[RunListDTO](t, do(t, router, http.MethodGet, "/api/runs", nil))
	assert.Empty(t, list.Runs)
}

func TestCreateRun_FailedRealizationsAreReported(t *testing.T) {
	// GIVEN: A start year without the prior year's history
	_, router := newTestHandler(t)

	// WHEN: Running from FY2020
	rec := do(t, router, http.MethodPost, "/api/runs", CreateRunRequest{StartYear: 2020, EndYear: 2021})

	// THEN: The run is stored with every realization failed
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Equal(t, 2, run.Failed)
	for _, o := range run.Outcomes {
		assert.False(t, o.Succeeded())
		assert.Contains(t, o.Error, "insufficient historical years")
	}

	// AND: Their results are not found
	res := do(t, router, http.MethodGet, "/api/runs/"+run.ID+"/realizations/0", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	_, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/runs/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "failed to get run", decode[ErrorResponse](t, rec).Error)
}

func TestGetResultAndTables(t *testing.T) {
	// GIVEN: A stored run
	_, router := newTestHandler(t)
	run := decode[RunDTO](t, do(t, router, http.MethodPost, "/api/runs", CreateRunRequest{Realizations: 1}))
	base := "/api/runs/" + run.ID + "/realizations/0"

	t.Run("full result", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[rollover.Result](t, rec)
		assert.Len(t, res.Actuals, 2)
		assert.Len(t, res.Metrics, 2)
		assert.NotEmpty(t, res.Sales)
	})

	t.Run("budgets as json", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, base+"/budgets", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		budgets := decode[[]finance.Budget](t, rec)
		require.Len(t, budgets, 2)
		assert.Equal(t, finance.FiscalYear(2021), budgets[0].FiscalYear)
		assert.Equal(t, finance.FiscalYear(2022), budgets[1].FiscalYear)
	})

	t.Run("metrics as csv", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, base+"/metrics.csv", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 3) // header + two years
	})

	t.Run("format query", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, base+"/actuals?format=csv", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	})

	t.Run("unknown table", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, base+"/ledger", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad index", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/runs/"+run.ID+"/realizations/x", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("index out of range", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/runs/"+run.ID+"/realizations/5", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPresets(t *testing.T) {
	_, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	presets := decode[[]PresetDTO](t, rec)
	require.Len(t, presets, 6)
	assert.Equal(t, "baseline", presets[0].ID)

	one := decode[PresetDTO](t, do(t, router, http.MethodGet, "/api/presets/schedule-driven", nil))
	assert.True(t, one.Params.Exogenous.FollowCIPSchedule)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/presets/none", nil).Code)
}

func TestHealth(t *testing.T) {
	_, router := newTestHandler(t)
	rec := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
