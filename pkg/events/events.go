// Package events defines the notifications emitted after pipeline changes commit.
package events

import (
	"time"

	"github.com/dukex/salesflow/pkg/models"
)

type EventType string

// Topic carries every pipeline event.
const Topic = "salesflow.pipeline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RecordCreatedEvent EventType = "pipeline.record.created"
	RecordUpdatedEvent EventType = "pipeline.record.updated"
	StageChangedEvent  EventType = "pipeline.stage.changed"
	LeadDeletedEvent   EventType = "lead.deleted"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	LeadID    string         `json:"lead_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RecordCreated is published once a lead enters the pipeline.
type RecordCreated struct {
	BaseEvent

	Record models.PipelineRecord `json:"record"`
	Actor  models.Actor          `json:"actor"`
}

func (e RecordCreated) GetType() EventType {
	return RecordCreatedEvent
}

// StageChanged is published after a transition has been committed. Subscribers
// run automations for the destination stage.
type StageChanged struct {
	BaseEvent

	Record         models.PipelineRecord `json:"record"`
	From           models.StageID        `json:"from_stage"`
	To             models.StageID        `json:"to_stage"`
	TransitionType models.TransitionType `json:"transition_type"`
	Actor          models.Actor          `json:"actor"`
	HistoryEntryID string                `json:"history_entry_id"`
}

func (e StageChanged) GetType() EventType {
	return StageChangedEvent
}

// RecordUpdated is published after the deal fields of a record changed
// (value, probability, expected close, assignee).
type RecordUpdated struct {
	BaseEvent

	Record models.PipelineRecord `json:"record"`
	Actor  models.Actor          `json:"actor"`
}

func (e RecordUpdated) GetType() EventType {
	return RecordUpdatedEvent
}

// LeadDeleted is published after a lead and its pipeline data were removed.
type LeadDeleted struct {
	BaseEvent

	RecordID string `json:"record_id,omitempty"`
}

func (e LeadDeleted) GetType() EventType {
	return LeadDeletedEvent
}
