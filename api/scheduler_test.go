package api

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchScheduler_RunNowStoresCronRun(t *testing.T) {
	// GIVEN: A scheduler over the test handler
	h, _ := newTestHandler(t)
	s := NewBatchScheduler(context.Background(), h, zerolog.Nop())

	// WHEN: Running a tick by hand
	dto, ran, err := s.RunNow()

	// THEN: A run from the cron source is stored
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, "cron", dto.Source)
	assert.Equal(t, 2, dto.Realizations)

	stored, err := h.Store.Run(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Equal(t, "cron", stored.Source)
}

func TestBatchScheduler_SkipsOverlappingTicks(t *testing.T) {
	h, _ := newTestHandler(t)
	s := NewBatchScheduler(context.Background(), h, zerolog.Nop())
	s.running = true

	_, ran, err := s.RunNow()

	require.NoError(t, err)
	assert.False(t, ran)
}

func TestBatchScheduler_Register(t *testing.T) {
	h, _ := newTestHandler(t)
	s := NewBatchScheduler(context.Background(), h, zerolog.Nop())

	assert.Error(t, s.Register("every tuesday"))
	require.NoError(t, s.Register("0 0 2 * * *"))
	assert.Len(t, s.Cron.Entries(), 1)

	s.Start()
	s.Stop()
}
