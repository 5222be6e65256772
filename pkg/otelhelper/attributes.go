package otelhelper

import (
	"github.com/dukex/salesflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

// RequestAttributes identify who asked for what on which lead.
func RequestAttributes(leadID string, actor models.Actor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LeadIDKey, leadID),
		attribute.String(ActorIDKey, actor.ID),
		attribute.String(ActorRoleKey, string(actor.Role)),
	}
}

// EntryAttributes describe a committed history entry.
func EntryAttributes(entry models.HistoryEntry) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RecordIDKey, entry.PipelineRecordID),
		attribute.String(ToStageKey, string(entry.ToStage)),
		attribute.String(TransitionTypeKey, string(entry.TransitionType)),
		attribute.Int(DwellDaysKey, entry.DurationInPreviousStageDays),
	}

	if from, ok := entry.From(); ok {
		attrs = append(attrs, attribute.String(FromStageKey, string(from)))
	}

	return attrs
}
