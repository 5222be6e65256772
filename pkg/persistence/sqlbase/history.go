package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/google/uuid"
)

func (r *Repository) insertHistory(ctx context.Context, tx *sql.Tx, entry models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}

	var from sql.NullString
	if stage, ok := entry.From(); ok {
		from = sql.NullString{String: string(stage), Valid: true}
	}

	var metadata sql.NullString

	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal history metadata: %w", err)
		}

		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO pipeline_history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.PipelineRecordID,
		string(entry.Kind),
		from,
		string(entry.ToStage),
		string(entry.TransitionType),
		entry.DurationInPreviousStageDays,
		entry.Notes,
		entry.ChangedBy,
		entry.ChangedAt.UTC(),
		metadata,
	)
	if err != nil {
		return persistence.Unavailable("insert history entry", err)
	}

	return nil
}

func scanHistory(row rowScanner) (models.HistoryEntry, error) {
	var (
		entry    models.HistoryEntry
		kind     string
		from     sql.NullString
		to       string
		kindType string
		metadata sql.NullString
	)

	err := row.Scan(
		&entry.ID,
		&entry.PipelineRecordID,
		&kind,
		&from,
		&to,
		&kindType,
		&entry.DurationInPreviousStageDays,
		&entry.Notes,
		&entry.ChangedBy,
		&entry.ChangedAt,
		&metadata,
	)
	if err != nil {
		return entry, err
	}

	entry.Kind = models.HistoryKind(kind)
	entry.FromStage = models.StageID(from.String)
	entry.ToStage = models.StageID(to)
	entry.TransitionType = models.TransitionType(kindType)
	entry.ChangedAt = entry.ChangedAt.UTC()

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return entry, fmt.Errorf("failed to unmarshal history metadata: %w", err)
		}
	}

	return entry, nil
}

func (r *Repository) queryHistory(ctx context.Context, query string, args ...any) ([]models.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.Unavailable("query history", err)
	}

	defer r.closeRows(ctx, rows)

	entries := make([]models.HistoryEntry, 0)

	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, persistence.Unavailable("scan history entry", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("iterate history", err)
	}

	return entries, nil
}

func (r *Repository) HistoryForRecord(ctx context.Context, recordID string) ([]models.HistoryEntry, error) {
	return r.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM pipeline_history WHERE pipeline_record_id = $1 ORDER BY changed_at, id`,
		recordID,
	)
}

func (r *Repository) AllHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	return r.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM pipeline_history ORDER BY pipeline_record_id, changed_at, id`,
	)
}
