package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
)

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}

	i := int(v.Int64)

	return &i
}

// SaveDefinition replaces the stored stages and rules in one transaction.
func (r *Repository) SaveDefinition(ctx context.Context, stages []models.Stage, rules []models.TransitionRule) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_transitions`); err != nil {
			return persistence.Unavailable("clear transitions", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_stages`); err != nil {
			return persistence.Unavailable("clear stages", err)
		}

		for _, stage := range stages {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pipeline_stages (id, name, position, is_active, target_duration_days, default_probability, color)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, string(stage.ID), stage.Name, stage.Order, stage.IsActive, nullInt(stage.TargetDurationDays), stage.DefaultProbability, stage.Color)
			if err != nil {
				return persistence.Unavailable("insert stage "+string(stage.ID), err)
			}
		}

		for _, rule := range rules {
			fields, err := json.Marshal(rule.RequiredFields)
			if err != nil {
				return fmt.Errorf("failed to marshal required fields: %w", err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO pipeline_transitions (from_stage, to_stage, is_allowed, requires_approval, auto_transition_days, required_fields)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, string(rule.From), string(rule.To), rule.IsAllowed, rule.RequiresApproval, nullInt(rule.AutoTransitionDays), string(fields))
			if err != nil {
				return persistence.Unavailable(fmt.Sprintf("insert transition %s -> %s", rule.From, rule.To), err)
			}
		}

		return nil
	})
}

func (r *Repository) Definition(ctx context.Context) ([]models.Stage, []models.TransitionRule, error) {
	stages, err := r.stages(ctx)
	if err != nil {
		return nil, nil, err
	}

	rules, err := r.transitions(ctx)
	if err != nil {
		return nil, nil, err
	}

	return stages, rules, nil
}

func (r *Repository) stages(ctx context.Context) ([]models.Stage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, position, is_active, target_duration_days, default_probability, color
		FROM pipeline_stages
		ORDER BY position, id
	`)
	if err != nil {
		return nil, persistence.Unavailable("query stages", err)
	}

	defer r.closeRows(ctx, rows)

	stages := make([]models.Stage, 0)

	for rows.Next() {
		var (
			stage  models.Stage
			id     string
			target sql.NullInt64
		)

		if err := rows.Scan(&id, &stage.Name, &stage.Order, &stage.IsActive, &target, &stage.DefaultProbability, &stage.Color); err != nil {
			return nil, persistence.Unavailable("scan stage", err)
		}

		stage.ID = models.StageID(id)
		stage.TargetDurationDays = intPtr(target)
		stages = append(stages, stage)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("iterate stages", err)
	}

	return stages, nil
}

func (r *Repository) transitions(ctx context.Context) ([]models.TransitionRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_stage, to_stage, is_allowed, requires_approval, auto_transition_days, required_fields
		FROM pipeline_transitions
		ORDER BY from_stage, to_stage
	`)
	if err != nil {
		return nil, persistence.Unavailable("query transitions", err)
	}

	defer r.closeRows(ctx, rows)

	rules := make([]models.TransitionRule, 0)

	for rows.Next() {
		var (
			rule     models.TransitionRule
			from, to string
			auto     sql.NullInt64
			fields   sql.NullString
		)

		if err := rows.Scan(&from, &to, &rule.IsAllowed, &rule.RequiresApproval, &auto, &fields); err != nil {
			return nil, persistence.Unavailable("scan transition", err)
		}

		rule.From = models.StageID(from)
		rule.To = models.StageID(to)
		rule.AutoTransitionDays = intPtr(auto)

		if fields.Valid && fields.String != "" && fields.String != "null" {
			if err := json.Unmarshal([]byte(fields.String), &rule.RequiredFields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal required fields: %w", err)
			}
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("iterate transitions", err)
	}

	return rules, nil
}

// HealthCheck verifies the database connection is healthy.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return persistence.Unavailable("ping database", err)
	}

	return nil
}

// Close closes the database connection.
func (r *Repository) Close(_ context.Context) error {
	if r.db == nil {
		return nil
	}

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for backend-specific maintenance.
func (r *Repository) DB() *sql.DB {
	return r.db
}
