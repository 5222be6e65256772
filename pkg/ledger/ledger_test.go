package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	entries []models.HistoryEntry
	err     error
}

func (s stubReader) HistoryForRecord(_ context.Context, recordID string) ([]models.HistoryEntry, error) {
	if s.err != nil {
		return nil, s.err
	}

	out := make([]models.HistoryEntry, 0)

	for _, entry := range s.entries {
		if entry.PipelineRecordID == recordID {
			out = append(out, entry)
		}
	}

	return out, nil
}

func (s stubReader) AllHistory(context.Context) ([]models.HistoryEntry, error) {
	return s.entries, s.err
}

func day(n int) time.Time {
	return testutil.BaseTime.AddDate(0, 0, n)
}

func journey(recordID string) []models.HistoryEntry {
	return []models.HistoryEntry{
		models.NewCreatedEntry(recordID, models.StageLeadNuevo, "u1", day(0)),
		models.NewTransitionedEntry(recordID, models.StageLeadNuevo, models.StageContactoInicial, models.TransitionManual, 1, "u1", day(1)),
		models.NewTransitionedEntry(recordID, models.StageContactoInicial, models.StageSeguimiento, models.TransitionAutomatic, 8, "system:sweeper", day(9)),
		models.NewTransitionedEntry(recordID, models.StageSeguimiento, models.StageCierrePerdido, models.TransitionManual, 2, "u2", day(11)),
		models.NewTransitionedEntry(recordID, models.StageCierrePerdido, models.StageSeguimiento, models.TransitionManual, 30, "u2", day(41)),
	}
}

func TestReplay(t *testing.T) {
	t.Run("reconstructs the current stage", func(t *testing.T) {
		stage, err := Replay(journey("r1"))
		require.NoError(t, err)
		assert.Equal(t, models.StageSeguimiento, stage)
	})

	t.Run("created only", func(t *testing.T) {
		stage, err := Replay(journey("r1")[:1])
		require.NoError(t, err)
		assert.Equal(t, models.StageLeadNuevo, stage)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Replay(nil)
		assert.ErrorIs(t, err, ErrEmptyHistory)
	})

	t.Run("first entry is not created", func(t *testing.T) {
		_, err := Replay(journey("r1")[1:])
		assert.ErrorIs(t, err, ErrMissingCreated)
	})

	t.Run("second created entry", func(t *testing.T) {
		entries := append(journey("r1")[:2], models.NewCreatedEntry("r1", models.StageLeadNuevo, "u1", day(3)))

		_, err := Replay(entries)
		assert.ErrorIs(t, err, ErrDuplicateCreated)
	})

	t.Run("broken chain", func(t *testing.T) {
		entries := journey("r1")
		entries = append(entries[:2], entries[3:]...)

		_, err := Replay(entries)
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
}

func TestVisits(t *testing.T) {
	visits := Visits(journey("r1"))
	require.Len(t, visits, 5)

	assert.Equal(t, Visit{Stage: models.StageLeadNuevo, EnteredAt: day(0), DwellDays: 1, Completed: true, Next: models.StageContactoInicial}, visits[0])
	assert.Equal(t, Visit{Stage: models.StageContactoInicial, EnteredAt: day(1), DwellDays: 8, Completed: true, Next: models.StageSeguimiento}, visits[1])
	assert.Equal(t, models.StageCierrePerdido, visits[3].Stage)
	assert.Equal(t, models.StageSeguimiento, visits[3].Next)

	last := visits[4]
	assert.Equal(t, models.StageSeguimiento, last.Stage)
	assert.False(t, last.Completed)
	assert.Zero(t, last.DwellDays)
}

func TestLedger_ListForRecord(t *testing.T) {
	entries := append(journey("r1"), journey("r2")[:2]...)
	ledger := New(stubReader{entries: entries})

	got, err := ledger.ListForRecord(t.Context(), "r2")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	grouped, err := ledger.ByRecord(t.Context())
	require.NoError(t, err)
	assert.Len(t, grouped["r1"], 5)
	assert.Len(t, grouped["r2"], 2)
}

func TestLedger_ReaderError(t *testing.T) {
	failure := errors.New("disk full")
	ledger := New(stubReader{err: failure})

	_, err := ledger.ListForRecord(t.Context(), "r1")
	require.ErrorIs(t, err, failure)

	_, err = ledger.ByRecord(t.Context())
	require.ErrorIs(t, err, failure)
}
