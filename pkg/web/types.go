package web

import (
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/pipeline"
)

// LeadRequest is the body of POST /leads.
type LeadRequest struct {
	ID     string            `json:"id,omitempty"`
	Name   string            `json:"name"             validate:"required,max=200"`
	Phone  string            `json:"phone,omitempty"  validate:"omitempty,max=32"`
	Email  string            `json:"email,omitempty"  validate:"omitempty,email"`
	DNI    string            `json:"dni,omitempty"    validate:"omitempty,numeric,min=7,max=9"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StageRequest is the body of POST /pipeline/stages.
type StageRequest struct {
	ID                 string `json:"id"                             validate:"required"`
	Name               string `json:"name"                           validate:"required,max=100"`
	Order              int    `json:"order"                          validate:"min=0"`
	IsActive           *bool  `json:"is_active,omitempty"`
	TargetDurationDays *int   `json:"target_duration_days,omitempty" validate:"omitempty,min=0"`
	DefaultProbability int    `json:"default_probability"            validate:"min=0,max=100"`
	Color              string `json:"color,omitempty"                validate:"omitempty,hexcolor"`
}

func (r StageRequest) toStage() models.Stage {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return models.Stage{
		ID:                 models.StageID(r.ID),
		Name:               r.Name,
		Order:              r.Order,
		IsActive:           active,
		TargetDurationDays: r.TargetDurationDays,
		DefaultProbability: r.DefaultProbability,
		Color:              r.Color,
	}
}

// TransitionRequest is the body of PUT /pipeline/transitions.
type TransitionRequest struct {
	FromStage          string   `json:"from_stage"                     validate:"required"`
	ToStage            string   `json:"to_stage"                       validate:"required"`
	IsAllowed          bool     `json:"is_allowed"`
	RequiresApproval   bool     `json:"requires_approval"`
	AutoTransitionDays *int     `json:"auto_transition_days,omitempty" validate:"omitempty,min=1"`
	RequiredFields     []string `json:"required_fields,omitempty"      validate:"dive,required"`
}

func (r TransitionRequest) toRule() (models.TransitionRule, error) {
	from, err := models.ParseStageID(r.FromStage)
	if err != nil {
		return models.TransitionRule{}, err
	}

	to, err := models.ParseStageID(r.ToStage)
	if err != nil {
		return models.TransitionRule{}, err
	}

	return models.TransitionRule{
		From:               from,
		To:                 to,
		IsAllowed:          r.IsAllowed,
		RequiresApproval:   r.RequiresApproval,
		AutoTransitionDays: r.AutoTransitionDays,
		RequiredFields:     r.RequiredFields,
	}, nil
}

// CreatePipelineRequest is the body of POST /leads/:leadId/pipeline.
type CreatePipelineRequest struct {
	TotalValue        float64    `json:"total_value"                   validate:"min=0"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	Notes             string     `json:"notes,omitempty"               validate:"max=2000"`
}

// UpdatePipelineRequest is the body of PATCH /leads/:leadId/pipeline. When
// to_stage is present the deal fields are committed together with the move.
type UpdatePipelineRequest struct {
	ToStage             *string        `json:"to_stage,omitempty"`
	Notes               string         `json:"notes,omitempty"                validate:"max=2000"`
	LossReason          *string        `json:"loss_reason,omitempty"`
	ProbabilityOverride *int           `json:"probability_override,omitempty" validate:"omitempty,min=0,max=100"`
	Metadata            map[string]any `json:"metadata,omitempty"`

	TotalValue             *float64   `json:"total_value,omitempty"               validate:"omitempty,min=0"`
	ExpectedCloseDate      *time.Time `json:"expected_close_date,omitempty"`
	ClearExpectedCloseDate bool       `json:"clear_expected_close_date,omitempty"`
	AssignedTo             *string    `json:"assigned_to,omitempty"`
	ProbabilityPercent     *int       `json:"probability_percent,omitempty"       validate:"omitempty,min=0,max=100"`
}

func (r UpdatePipelineRequest) hasDetails() bool {
	return r.TotalValue != nil || r.ExpectedCloseDate != nil || r.ClearExpectedCloseDate ||
		r.AssignedTo != nil || r.ProbabilityPercent != nil
}

func (r UpdatePipelineRequest) dealDetails() pipeline.DealDetails {
	return pipeline.DealDetails{
		TotalValue:             r.TotalValue,
		ExpectedCloseDate:      r.ExpectedCloseDate,
		ClearExpectedCloseDate: r.ClearExpectedCloseDate,
		AssignedTo:             r.AssignedTo,
		ProbabilityPercent:     r.ProbabilityPercent,
	}
}

// PipelineResponse is returned by the pipeline mutations.
type PipelineResponse struct {
	Record   *models.PipelineRecord `json:"record"`
	Entry    *models.HistoryEntry   `json:"history_entry,omitempty"`
	Warnings []pipeline.Warning     `json:"warnings"`
}
