package otelhelper

import (
	"testing"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestRequestAttributes(t *testing.T) {
	attrs := RequestAttributes("lead-1", models.Actor{ID: "u-1", Role: models.RoleSupervisor})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String(LeadIDKey, "lead-1"),
		attribute.String(ActorIDKey, "u-1"),
		attribute.String(ActorRoleKey, "SUPERVISOR"),
	}, attrs)
}

func TestEntryAttributes(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	created := EntryAttributes(models.NewCreatedEntry("rec-1", models.StageLeadNuevo, "u-1", at))
	assert.NotContains(t, created, attribute.String(FromStageKey, ""))
	assert.Contains(t, created, attribute.String(ToStageKey, "LEAD_NUEVO"))

	moved := EntryAttributes(models.HistoryEntry{
		PipelineRecordID:            "rec-1",
		Kind:                        models.HistoryKindTransitioned,
		FromStage:                   models.StageLeadNuevo,
		ToStage:                     models.StageContactoInicial,
		TransitionType:              models.TransitionAutomatic,
		DurationInPreviousStageDays: 3,
	})
	assert.Contains(t, moved, attribute.String(FromStageKey, "LEAD_NUEVO"))
	assert.Contains(t, moved, attribute.Int(DwellDaysKey, 3))
	assert.Contains(t, moved, attribute.String(TransitionTypeKey, "AUTOMATIC"))
}
