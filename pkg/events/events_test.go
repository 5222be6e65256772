package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, StageChangedEvent, StageChanged{}.GetType())
	assert.Equal(t, RecordCreatedEvent, RecordCreated{}.GetType())
	assert.Equal(t, RecordUpdatedEvent, RecordUpdated{}.GetType())
	assert.Equal(t, LeadDeletedEvent, LeadDeleted{}.GetType())
}

func TestStageChanged_JSON(t *testing.T) {
	event := StageChanged{
		BaseEvent: BaseEvent{
			ID:        "evt-1",
			Type:      StageChangedEvent,
			Timestamp: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			LeadID:    "lead-1",
		},
		Record:         models.PipelineRecord{ID: "rec-1", LeadID: "lead-1", CurrentStage: models.StageCalificacion},
		From:           models.StageContactoInicial,
		To:             models.StageCalificacion,
		TransitionType: models.TransitionAutomatic,
		Actor:          models.SystemActor("sweeper"),
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	// embedded fields are flattened
	assert.Equal(t, "lead-1", raw["lead_id"])
	assert.Equal(t, "CONTACTO_INICIAL", raw["from_stage"])
	assert.Equal(t, "AUTOMATIC", raw["transition_type"])

	var decoded StageChanged
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, models.StageCalificacion, decoded.Record.CurrentStage)
	assert.Equal(t, models.RoleSystem, decoded.Actor.Role)
}
