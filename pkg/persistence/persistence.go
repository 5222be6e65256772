// Package persistence provides the storage abstraction for leads, pipeline records,
// their history and the pipeline definition.
package persistence

import (
	"context"

	"github.com/dukex/salesflow/pkg/models"
)

// RecordFilter narrows Records. The zero value returns every record.
type RecordFilter struct {
	Stage    models.StageID
	OpenOnly bool
}

// Matches reports whether record passes the filter.
func (f RecordFilter) Matches(record *models.PipelineRecord) bool {
	if f.Stage != "" && record.CurrentStage != f.Stage {
		return false
	}

	if f.OpenOnly && record.IsClosed() {
		return false
	}

	return true
}

// RecordStore owns pipeline records and their append-only history. History is
// only written together with a record change, never on its own.
type RecordStore interface {
	// CreateRecord inserts the record and its Created entry atomically.
	CreateRecord(ctx context.Context, record *models.PipelineRecord, created models.HistoryEntry) error
	// RecordByLeadID returns nil, nil when the lead has no record.
	RecordByLeadID(ctx context.Context, leadID string) (*models.PipelineRecord, error)
	Records(ctx context.Context, filter RecordFilter) ([]*models.PipelineRecord, error)
	// CommitTransition stores record and appends entry in one transaction when the
	// stored version still equals expectedVersion. On success record.Version is
	// expectedVersion+1.
	CommitTransition(ctx context.Context, expectedVersion int64, record *models.PipelineRecord, entry models.HistoryEntry) error
	// UpdateRecordDetails stores non-stage fields with the same version check.
	UpdateRecordDetails(ctx context.Context, expectedVersion int64, record *models.PipelineRecord) error
	// HistoryForRecord is ordered by ChangedAt, then ID.
	HistoryForRecord(ctx context.Context, recordID string) ([]models.HistoryEntry, error)
	AllHistory(ctx context.Context) ([]models.HistoryEntry, error)
}

type LeadStore interface {
	SaveLead(ctx context.Context, lead *models.Lead) error
	// LeadByID returns nil, nil when absent.
	LeadByID(ctx context.Context, id string) (*models.Lead, error)
	// DeleteLead removes the lead with its pipeline record and history.
	DeleteLead(ctx context.Context, id string) error
}

type DefinitionStore interface {
	// SaveDefinition replaces the stored stages and transition rules.
	SaveDefinition(ctx context.Context, stages []models.Stage, rules []models.TransitionRule) error
	// Definition returns empty slices when nothing was saved.
	Definition(ctx context.Context) ([]models.Stage, []models.TransitionRule, error)
}

type Persistence interface {
	RecordStore
	LeadStore
	DefinitionStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
