package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/google/uuid"
)

// Dialect captures what differs between the SQL backends. Queries themselves use
// $n placeholders, which both lib/pq and go-sqlite3 accept.
type Dialect interface {
	Name() string
	IsUniqueViolation(err error) bool
}

// Repository implements persistence.Persistence on top of database/sql.
type Repository struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect Dialect
}

var _ persistence.Persistence = (*Repository)(nil)

func NewRepository(db *sql.DB, logger *slog.Logger, dialect Dialect) *Repository {
	return &Repository{db: db, logger: logger, dialect: dialect}
}

const recordColumns = `
	id
  , lead_id
  , current_stage
  , stage_entered_at
  , closed_at
  , won
  , loss_reason
  , total_value
  , probability_percent
  , expected_close_date
  , assigned_to
  , version
  , created_at
  , updated_at`

const historyColumns = `
	id
  , pipeline_record_id
  , kind
  , from_stage
  , to_stage
  , transition_type
  , duration_in_previous_stage_days
  , notes
  , changed_by
  , changed_at
  , metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

// withTx commits when fn succeeds and rolls back otherwise.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.Unavailable("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return persistence.Unavailable("commit transaction", err)
	}

	return nil
}

func (r *Repository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// CreateRecord inserts the record with version 1 and its Created history entry.
func (r *Repository) CreateRecord(ctx context.Context, record *models.PipelineRecord, created models.HistoryEntry) error {
	if record.ID == "" {
		record.ID = uuid.Must(uuid.NewV7()).String()
	}

	created.PipelineRecordID = record.ID

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var leads int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE id = $1`, record.LeadID).Scan(&leads); err != nil {
			return persistence.Unavailable("check lead", err)
		}

		if leads == 0 {
			return persistence.NewRecordError("CreateRecord", record.LeadID, persistence.ErrLeadNotFound)
		}

		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lead_pipeline WHERE lead_id = $1`, record.LeadID).Scan(&existing); err != nil {
			return persistence.Unavailable("check pipeline record", err)
		}

		if existing > 0 {
			return persistence.NewRecordError("CreateRecord", record.LeadID, persistence.ErrRecordAlreadyExists)
		}

		query := `
			INSERT INTO lead_pipeline (` + recordColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`

		_, err := tx.ExecContext(ctx, query, recordArgs(record, 1)...)
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return persistence.NewRecordError("CreateRecord", record.LeadID, persistence.ErrRecordAlreadyExists)
			}

			return persistence.Unavailable("insert pipeline record", err)
		}

		return r.insertHistory(ctx, tx, created)
	})
	if err != nil {
		return err
	}

	record.Version = 1

	return nil
}

func recordArgs(record *models.PipelineRecord, version int64) []any {
	var lossReason sql.NullString
	if record.LossReason != nil {
		lossReason = sql.NullString{String: string(*record.LossReason), Valid: true}
	}

	var won sql.NullBool
	if record.Won != nil {
		won = sql.NullBool{Bool: *record.Won, Valid: true}
	}

	return []any{
		record.ID,
		record.LeadID,
		string(record.CurrentStage),
		record.StageEnteredAt.UTC(),
		nullTime(record.ClosedAt),
		won,
		lossReason,
		record.TotalValue,
		record.ProbabilityPercent,
		nullTime(record.ExpectedCloseDate),
		record.AssignedTo,
		version,
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	utc := t.Time.UTC()

	return &utc
}

func scanRecord(row rowScanner) (*models.PipelineRecord, error) {
	var (
		record     models.PipelineRecord
		stage      string
		closedAt   sql.NullTime
		won        sql.NullBool
		lossReason sql.NullString
		expected   sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.LeadID,
		&stage,
		&record.StageEnteredAt,
		&closedAt,
		&won,
		&lossReason,
		&record.TotalValue,
		&record.ProbabilityPercent,
		&expected,
		&record.AssignedTo,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.CurrentStage = models.StageID(stage)
	record.StageEnteredAt = record.StageEnteredAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	record.ClosedAt = timePtr(closedAt)
	record.ExpectedCloseDate = timePtr(expected)

	if won.Valid {
		record.Won = &won.Bool
	}

	if lossReason.Valid {
		reason := models.LossReason(lossReason.String)
		record.LossReason = &reason
	}

	return &record, nil
}

func (r *Repository) RecordByLeadID(ctx context.Context, leadID string) (*models.PipelineRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM lead_pipeline WHERE lead_id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, leadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.Unavailable("query pipeline record", err)
	}

	return record, nil
}

func (r *Repository) Records(ctx context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		conditions = append(conditions, fmt.Sprintf("current_stage = $%d", len(args)))
	}

	if filter.OpenOnly {
		args = append(args, string(models.StageCierreGanado), string(models.StageCierrePerdido))
		conditions = append(conditions, fmt.Sprintf("current_stage NOT IN ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + recordColumns + ` FROM lead_pipeline`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.Unavailable("query pipeline records", err)
	}

	defer r.closeRows(ctx, rows)

	records := make([]*models.PipelineRecord, 0)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, persistence.Unavailable("scan pipeline record", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("iterate pipeline records", err)
	}

	return records, nil
}

func (r *Repository) CommitTransition(ctx context.Context, expectedVersion int64, record *models.PipelineRecord, entry models.HistoryEntry) error {
	entry.PipelineRecordID = record.ID

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.updateRecord(ctx, tx, "CommitTransition", expectedVersion, record); err != nil {
			return err
		}

		return r.insertHistory(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	record.Version = expectedVersion + 1

	return nil
}

func (r *Repository) UpdateRecordDetails(ctx context.Context, expectedVersion int64, record *models.PipelineRecord) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		return r.updateRecord(ctx, tx, "UpdateRecordDetails", expectedVersion, record)
	})
	if err != nil {
		return err
	}

	record.Version = expectedVersion + 1

	return nil
}

// updateRecord is the compare-and-swap on version shared by stage and detail updates.
func (r *Repository) updateRecord(ctx context.Context, tx *sql.Tx, op string, expectedVersion int64, record *models.PipelineRecord) error {
	// Placeholders are numbered in order of appearance: go-sqlite3 binds
	// positional arguments by that order, not by the number after $.
	query := `
		UPDATE lead_pipeline SET
			current_stage = $1
		  , stage_entered_at = $2
		  , closed_at = $3
		  , won = $4
		  , loss_reason = $5
		  , total_value = $6
		  , probability_percent = $7
		  , expected_close_date = $8
		  , assigned_to = $9
		  , version = $10
		  , updated_at = $11
		WHERE id = $12 AND lead_id = $13 AND version = $14
	`

	// recordArgs is id, lead_id, the updatable columns, created_at, updated_at;
	// created_at is never rewritten.
	columns := recordArgs(record, expectedVersion+1)
	args := make([]any, 0, 14)
	args = append(args, columns[2:12]...)
	args = append(args, columns[13], record.ID, record.LeadID, expectedVersion)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.Unavailable("update pipeline record", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Unavailable("update pipeline record", err)
	}

	if affected == 1 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lead_pipeline WHERE id = $1`, record.ID).Scan(&exists); err != nil {
		return persistence.Unavailable("check pipeline record", err)
	}

	if exists == 0 {
		return persistence.NewRecordError(op, record.LeadID, persistence.ErrRecordNotFound)
	}

	return persistence.NewRecordError(op, record.LeadID, persistence.ErrVersionConflict)
}
