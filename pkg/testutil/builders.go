// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/google/uuid"
)

// BaseTime is a fixed instant tests can build timelines from.
var BaseTime = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// CreateTestLead creates a test Lead with default values that can be overridden.
func CreateTestLead(overrides ...func(*models.Lead)) *models.Lead {
	lead := &models.Lead{
		ID:        uuid.NewString(),
		Name:      "Juan Pérez",
		Phone:     "+543704000000",
		Email:     "juan@example.com",
		DNI:       "30111222",
		Fields:    map[string]string{"modelo_moto": "Honda Wave 110"},
		CreatedAt: BaseTime,
	}

	for _, override := range overrides {
		override(lead)
	}

	return lead
}

// WithoutContactData clears phone, email and DNI.
func WithoutContactData() func(*models.Lead) {
	return func(l *models.Lead) {
		l.Phone = ""
		l.Email = ""
		l.DNI = ""
	}
}

// CreateTestRecord creates an open record in the initial stage for leadID.
func CreateTestRecord(leadID string, overrides ...func(*models.PipelineRecord)) *models.PipelineRecord {
	record := &models.PipelineRecord{
		ID:                 uuid.NewString(),
		LeadID:             leadID,
		CurrentStage:       models.InitialStage,
		StageEnteredAt:     BaseTime,
		ProbabilityPercent: 10,
		CreatedAt:          BaseTime,
		UpdatedAt:          BaseTime,
	}

	for _, override := range overrides {
		override(record)
	}

	return record
}

// InStage places the record in stage, entered at enteredAt.
func InStage(stage models.StageID, enteredAt time.Time) func(*models.PipelineRecord) {
	return func(r *models.PipelineRecord) {
		r.CurrentStage = stage
		r.StageEnteredAt = enteredAt
	}
}

// WithDeal sets value, probability and expected close date.
func WithDeal(value float64, probability int, expectedClose *time.Time) func(*models.PipelineRecord) {
	return func(r *models.PipelineRecord) {
		r.TotalValue = value
		r.ProbabilityPercent = probability
		r.ExpectedCloseDate = expectedClose
	}
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
