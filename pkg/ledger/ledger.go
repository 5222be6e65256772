// Package ledger reads the append-only stage history of pipeline records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/salesflow/pkg/models"
)

var (
	ErrEmptyHistory     = errors.New("history is empty")
	ErrMissingCreated   = errors.New("history does not start with a created entry")
	ErrDuplicateCreated = errors.New("history has more than one created entry")
	ErrBrokenChain      = errors.New("history entry does not continue from the previous stage")
)

// Reader is the part of the record store the ledger needs.
type Reader interface {
	HistoryForRecord(ctx context.Context, recordID string) ([]models.HistoryEntry, error)
	AllHistory(ctx context.Context) ([]models.HistoryEntry, error)
}

// Ledger has no update or delete operation. Entries are appended by the store,
// inside the same transaction that changes the record.
type Ledger struct {
	reader Reader
}

func New(reader Reader) *Ledger {
	return &Ledger{reader: reader}
}

// ListForRecord returns the entries of one record, oldest first.
func (l *Ledger) ListForRecord(ctx context.Context, recordID string) ([]models.HistoryEntry, error) {
	entries, err := l.reader.HistoryForRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of record %s: %w", recordID, err)
	}

	return entries, nil
}

// ByRecord groups the full history per record, each group oldest first.
func (l *Ledger) ByRecord(ctx context.Context) (map[string][]models.HistoryEntry, error) {
	entries, err := l.reader.AllHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	grouped := make(map[string][]models.HistoryEntry)
	for _, entry := range entries {
		grouped[entry.PipelineRecordID] = append(grouped[entry.PipelineRecordID], entry)
	}

	return grouped, nil
}

// Replay folds the entries of one record and returns the stage it ends in.
func Replay(entries []models.HistoryEntry) (models.StageID, error) {
	if len(entries) == 0 {
		return "", ErrEmptyHistory
	}

	if entries[0].Kind != models.HistoryKindCreated {
		return "", fmt.Errorf("%w: first entry %s is %s", ErrMissingCreated, entries[0].ID, entries[0].Kind)
	}

	current := entries[0].ToStage

	for _, entry := range entries[1:] {
		from, ok := entry.From()
		if !ok {
			return "", fmt.Errorf("%w: entry %s", ErrDuplicateCreated, entry.ID)
		}

		if from != current {
			return "", fmt.Errorf("%w: entry %s moves from %s but the record was in %s", ErrBrokenChain, entry.ID, from, current)
		}

		current = entry.ToStage
	}

	return current, nil
}

// Visit is one stay of a record in a stage.
type Visit struct {
	Stage     models.StageID
	EnteredAt time.Time
	// DwellDays is only set for completed visits.
	DwellDays int
	Completed bool
	// Next is the stage the record moved to when the visit ended.
	Next models.StageID
}

// Visits turns a valid history into its sequence of stage stays.
func Visits(entries []models.HistoryEntry) []Visit {
	visits := make([]Visit, 0, len(entries))

	for _, entry := range entries {
		if n := len(visits); n > 0 && entry.Kind == models.HistoryKindTransitioned {
			visits[n-1].Completed = true
			visits[n-1].DwellDays = entry.DurationInPreviousStageDays
			visits[n-1].Next = entry.ToStage
		}

		visits = append(visits, Visit{Stage: entry.ToStage, EnteredAt: entry.ChangedAt})
	}

	return visits
}
