package models

import (
	"fmt"
	"time"
)

// LossReason explains why a deal was lost.
type LossReason string

const (
	LossReasonPrecio      LossReason = "PRECIO"
	LossReasonCompetencia LossReason = "COMPETENCIA"
	LossReasonPresupuesto LossReason = "PRESUPUESTO"
	LossReasonTiming      LossReason = "TIMING"
	LossReasonNoInteres   LossReason = "NO_INTERES"
	LossReasonNoContacto  LossReason = "NO_CONTACTO"
	LossReasonOtro        LossReason = "OTRO"
)

var lossReasons = []LossReason{
	LossReasonPrecio,
	LossReasonCompetencia,
	LossReasonPresupuesto,
	LossReasonTiming,
	LossReasonNoInteres,
	LossReasonNoContacto,
	LossReasonOtro,
}

// ParseLossReason returns the LossReason for raw or ErrInvalidLossReason.
func ParseLossReason(raw string) (LossReason, error) {
	for _, reason := range lossReasons {
		if string(reason) == raw {
			return reason, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidLossReason, raw)
}

// PipelineRecord is the mutable pipeline state of one lead.
type PipelineRecord struct {
	ID                 string      `json:"id"`
	LeadID             string      `json:"lead_id"                       validate:"required"`
	CurrentStage       StageID     `json:"current_stage"                 validate:"required"`
	StageEnteredAt     time.Time   `json:"stage_entered_at"`
	ClosedAt           *time.Time  `json:"closed_at,omitempty"`
	Won                *bool       `json:"won,omitempty"`
	LossReason         *LossReason `json:"loss_reason,omitempty"`
	TotalValue         float64     `json:"total_value"                   validate:"min=0"`
	ProbabilityPercent int         `json:"probability_percent"           validate:"min=0,max=100"`
	ExpectedCloseDate  *time.Time  `json:"expected_close_date,omitempty"`
	AssignedTo         string      `json:"assigned_to,omitempty"`
	Version            int64       `json:"version"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// IsClosed reports whether the record sits in a terminal stage.
func (r *PipelineRecord) IsClosed() bool {
	return r.CurrentStage.IsTerminal()
}

// DwellDays returns the whole days spent in the current stage at now, never negative.
func (r *PipelineRecord) DwellDays(now time.Time) int {
	return WholeDaysBetween(r.StageEnteredAt, now)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *PipelineRecord) Clone() *PipelineRecord {
	if r == nil {
		return nil
	}

	clone := *r

	if r.ClosedAt != nil {
		closedAt := *r.ClosedAt
		clone.ClosedAt = &closedAt
	}

	if r.Won != nil {
		won := *r.Won
		clone.Won = &won
	}

	if r.LossReason != nil {
		reason := *r.LossReason
		clone.LossReason = &reason
	}

	if r.ExpectedCloseDate != nil {
		expected := *r.ExpectedCloseDate
		clone.ExpectedCloseDate = &expected
	}

	return &clone
}

// WholeDaysBetween returns floor((to - from) / 24h), clamped to zero.
func WholeDaysBetween(from, to time.Time) int {
	elapsed := to.Sub(from)
	if elapsed <= 0 {
		return 0
	}

	return int(elapsed / (24 * time.Hour))
}
