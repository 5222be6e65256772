package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/google/uuid"
)

// SaveLead inserts or updates a lead. Missing ids and creation times are filled in.
func (r *Repository) SaveLead(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.Must(uuid.NewV7()).String()
	}

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	fields, err := json.Marshal(lead.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal lead fields: %w", err)
	}

	query := `
		INSERT INTO leads (id, name, phone, email, dni, fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , phone = EXCLUDED.phone
		  , email = EXCLUDED.email
		  , dni = EXCLUDED.dni
		  , fields = EXCLUDED.fields
	`

	_, err = r.db.ExecContext(ctx, query,
		lead.ID, lead.Name, lead.Phone, lead.Email, lead.DNI, string(fields), lead.CreatedAt.UTC(),
	)
	if err != nil {
		return persistence.Unavailable("save lead", err)
	}

	return nil
}

func (r *Repository) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	var (
		lead   models.Lead
		fields sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, dni, fields, created_at FROM leads WHERE id = $1`, id,
	).Scan(&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &lead.DNI, &fields, &lead.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.Unavailable("query lead", err)
	}

	lead.CreatedAt = lead.CreatedAt.UTC()

	if fields.Valid && fields.String != "" && fields.String != "null" {
		if err := json.Unmarshal([]byte(fields.String), &lead.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lead fields: %w", err)
		}
	}

	return &lead, nil
}

// DeleteLead relies on ON DELETE CASCADE to remove the record and its history.
func (r *Repository) DeleteLead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return persistence.Unavailable("delete lead", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Unavailable("delete lead", err)
	}

	if affected == 0 {
		return persistence.NewRecordError("DeleteLead", id, persistence.ErrLeadNotFound)
	}

	return nil
}
