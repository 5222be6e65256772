package models

import "time"

// HistoryKind distinguishes the creation entry from real transitions.
type HistoryKind string

const (
	HistoryKindCreated      HistoryKind = "created"
	HistoryKindTransitioned HistoryKind = "transitioned"
)

// TransitionType records who initiated a transition.
type TransitionType string

const (
	TransitionManual    TransitionType = "MANUAL"
	TransitionAutomatic TransitionType = "AUTOMATIC"
	TransitionScheduled TransitionType = "SCHEDULED"
)

// Valid reports whether t is a known transition type.
func (t TransitionType) Valid() bool {
	switch t {
	case TransitionManual, TransitionAutomatic, TransitionScheduled:
		return true
	default:
		return false
	}
}

// HistoryEntry is an immutable fact about a record's stage. A Created entry has
// no previous stage; a Transitioned entry always has one.
type HistoryEntry struct {
	ID                          string         `json:"id"`
	PipelineRecordID            string         `json:"pipeline_record_id"`
	Kind                        HistoryKind    `json:"kind"`
	FromStage                   StageID        `json:"from_stage,omitempty"`
	ToStage                     StageID        `json:"to_stage"`
	TransitionType              TransitionType `json:"transition_type"`
	DurationInPreviousStageDays int            `json:"duration_in_previous_stage_days"`
	Notes                       string         `json:"notes,omitempty"`
	ChangedBy                   string         `json:"changed_by"`
	ChangedAt                   time.Time      `json:"changed_at"`
	Metadata                    map[string]any `json:"metadata,omitempty"`
}

// NewCreatedEntry builds the first entry of a record.
func NewCreatedEntry(recordID string, stage StageID, changedBy string, at time.Time) HistoryEntry {
	return HistoryEntry{
		PipelineRecordID: recordID,
		Kind:             HistoryKindCreated,
		ToStage:          stage,
		TransitionType:   TransitionManual,
		ChangedBy:        changedBy,
		ChangedAt:        at,
	}
}

// NewTransitionedEntry builds the entry for a move between two stages.
func NewTransitionedEntry(recordID string, from, to StageID, kind TransitionType, dwellDays int, changedBy string, at time.Time) HistoryEntry {
	return HistoryEntry{
		PipelineRecordID:            recordID,
		Kind:                        HistoryKindTransitioned,
		FromStage:                   from,
		ToStage:                     to,
		TransitionType:              kind,
		DurationInPreviousStageDays: dwellDays,
		ChangedBy:                   changedBy,
		ChangedAt:                   at,
	}
}

// From returns the previous stage; ok is false for the Created entry.
func (e HistoryEntry) From() (StageID, bool) {
	if e.Kind != HistoryKindTransitioned {
		return "", false
	}

	return e.FromStage, true
}
