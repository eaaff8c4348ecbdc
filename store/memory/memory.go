// Package memory provides an in-memory rollover.ResultStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/CLI)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	runs     map[string]rollover.Run
	outcomes map[string][]rollover.OutcomeRecord
	results  map[key]*rollover.Result
}

type key struct {
	RunID string
	Index int
}

func New() *Memory {
	return &Memory{
		runs:     make(map[string]rollover.Run),
		outcomes: make(map[string][]rollover.OutcomeRecord),
		results:  make(map[key]*rollover.Result),
	}
}

// CreateRun adds a run header. Append-only.
func (m *Memory) CreateRun(_ context.Context, run rollover.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

// AppendOutcome adds one realization's outcome. Append-only.
func (m *Memory) AppendOutcome(_ context.Context, runID string, o rollover.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return finance.ErrRunNotFound
	}
	k := key{RunID: runID, Index: o.Index}
	for _, existing := range m.outcomes[runID] {
		if existing.Index == o.Index {
			return finance.ErrDuplicateRealization
		}
	}

	recs := m.outcomes[runID]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Index > o.Index })
	recs = append(recs, rollover.OutcomeRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rollover.RecordOf(runID, o)
	m.outcomes[runID] = recs

	if o.Err == nil && o.Result != nil {
		m.results[k] = o.Result
	}
	return nil
}

func (m *Memory) Run(_ context.Context, id string) (rollover.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return rollover.Run{}, finance.ErrRunNotFound
	}
	return run, nil
}

func (m *Memory) Runs(_ context.Context) ([]rollover.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]rollover.Run, 0, len(m.runs))
	for _, r := range m.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) Outcomes(_ context.Context, runID string) ([]rollover.OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, finance.ErrRunNotFound
	}
	result := make([]rollover.OutcomeRecord, len(m.outcomes[runID]))
	copy(result, m.outcomes[runID])
	return result, nil
}

func (m *Memory) Result(_ context.Context, runID string, index int) (*rollover.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, finance.ErrRunNotFound
	}
	res, ok := m.results[key{RunID: runID, Index: index}]
	if !ok {
		return nil, fmt.Errorf("realization %d: %w", index, finance.ErrRealizationNotFound)
	}
	return res, nil
}
