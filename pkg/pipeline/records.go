package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/salesflow/pkg/events"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/otelhelper"
	"github.com/dukex/salesflow/pkg/persistence"
)

// SaveLead creates or replaces the lead snapshot the engine validates against.
func (e *Engine) SaveLead(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead == nil {
		return nil, invalidRequest("lead cannot be nil")
	}

	saved := *lead
	saved.Name = strings.TrimSpace(saved.Name)

	if saved.ID == "" {
		saved.ID = newID()
	}

	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = e.now()
	}

	if err := e.validate.Struct(saved); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := e.store.SaveLead(ctx, &saved); err != nil {
		return nil, storeUnavailable("save lead", err)
	}

	return &saved, nil
}

func (e *Engine) LeadByID(ctx context.Context, leadID string) (*models.Lead, error) {
	lead, err := e.store.LeadByID(ctx, leadID)
	if err != nil {
		return nil, storeUnavailable("load lead", err)
	}

	if lead == nil {
		return nil, fmt.Errorf("%w: lead %s", ErrNotFound, leadID)
	}

	return lead, nil
}

// CreateRequest puts a lead into the pipeline at the initial stage.
type CreateRequest struct {
	LeadID            string       `validate:"required"`
	Actor             models.Actor `validate:"required"`
	TotalValue        float64      `validate:"min=0"`
	ExpectedCloseDate *time.Time
	AssignedTo        string
	Notes             string `validate:"max=2000"`
}

func (e *Engine) CreateRecord(ctx context.Context, req CreateRequest) (*models.PipelineRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.create_record",
		otelhelper.RequestAttributes(req.LeadID, req.Actor)...)
	defer span.End()

	if err := e.validate.Struct(req); err != nil {
		return nil, e.reject(ctx, span, "create", req.LeadID, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	initial, err := e.Catalog().GetStage(models.InitialStage)
	if err != nil {
		return nil, e.reject(ctx, span, "create", req.LeadID, fmt.Errorf("%w: %w", ErrInvalidStage, err))
	}

	now := e.now()

	record := &models.PipelineRecord{
		ID:                 newID(),
		LeadID:             req.LeadID,
		CurrentStage:       initial.ID,
		StageEnteredAt:     now,
		TotalValue:         req.TotalValue,
		ProbabilityPercent: initial.DefaultProbability,
		AssignedTo:         req.AssignedTo,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if req.ExpectedCloseDate != nil {
		expected := req.ExpectedCloseDate.UTC()
		record.ExpectedCloseDate = &expected
	}

	created := models.NewCreatedEntry(record.ID, initial.ID, req.Actor.ID, now)
	created.ID = newID()
	created.Notes = req.Notes

	if err := e.store.CreateRecord(ctx, record, created); err != nil {
		switch {
		case persistence.IsRecordAlreadyExists(err):
			err = fmt.Errorf("%w: lead %s", ErrDuplicate, req.LeadID)
		case persistence.IsLeadNotFound(err):
			err = fmt.Errorf("%w: lead %s", ErrNotFound, req.LeadID)
		default:
			err = storeUnavailable("create pipeline record", err)
		}

		return nil, e.reject(ctx, span, "create", req.LeadID, err)
	}

	e.recorder.RecordCreated()
	e.logger.InfoContext(ctx, "Lead entered the pipeline", "lead_id", req.LeadID, "record_id", record.ID)

	e.publish(ctx, req.LeadID, &events.RecordCreated{
		BaseEvent: e.baseEvent(events.RecordCreatedEvent, req.LeadID),
		Record:    *record,
		Actor:     req.Actor,
	})

	return record, nil
}

// RecordByLeadID fails with ErrNotFound when the lead has no record.
func (e *Engine) RecordByLeadID(ctx context.Context, leadID string) (*models.PipelineRecord, error) {
	return e.loadRecord(ctx, leadID)
}

func (e *Engine) Records(ctx context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error) {
	records, err := e.store.Records(ctx, filter)
	if err != nil {
		return nil, storeUnavailable("list pipeline records", err)
	}

	return records, nil
}

// History returns the ledger of the lead's record, oldest first.
func (e *Engine) History(ctx context.Context, leadID string) ([]models.HistoryEntry, error) {
	record, err := e.loadRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}

	entries, err := e.ledger.ListForRecord(ctx, record.ID)
	if err != nil {
		return nil, storeUnavailable("load history", err)
	}

	return entries, nil
}

// AllowedTargets lists the active stages the lead's record may move to now.
func (e *Engine) AllowedTargets(ctx context.Context, leadID string) ([]models.Stage, error) {
	record, err := e.loadRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}

	return e.rules.ListAllowedTargets(record.CurrentStage), nil
}

// DealDetails are the editable deal fields of a record. Nil fields are left untouched.
type DealDetails struct {
	TotalValue             *float64 `validate:"omitempty,min=0"`
	ExpectedCloseDate      *time.Time
	ClearExpectedCloseDate bool
	AssignedTo             *string
	ProbabilityPercent     *int `validate:"omitempty,min=0,max=100"`
}

func (d DealDetails) empty() bool {
	return d.TotalValue == nil && d.ExpectedCloseDate == nil && !d.ClearExpectedCloseDate &&
		d.AssignedTo == nil && d.ProbabilityPercent == nil
}

func (d DealDetails) apply(record *models.PipelineRecord) {
	if d.TotalValue != nil {
		record.TotalValue = *d.TotalValue
	}

	if d.ClearExpectedCloseDate {
		record.ExpectedCloseDate = nil
	} else if d.ExpectedCloseDate != nil {
		expected := d.ExpectedCloseDate.UTC()
		record.ExpectedCloseDate = &expected
	}

	if d.AssignedTo != nil {
		record.AssignedTo = strings.TrimSpace(*d.AssignedTo)
	}

	if d.ProbabilityPercent != nil {
		record.ProbabilityPercent = *d.ProbabilityPercent
	}
}

// DetailsRequest changes deal fields of an open record.
type DetailsRequest struct {
	LeadID  string       `validate:"required"`
	Actor   models.Actor `validate:"required"`
	Details DealDetails
}

// UpdateDetails edits the deal fields of an open record. The stage never changes here.
func (e *Engine) UpdateDetails(ctx context.Context, req DetailsRequest) (*models.PipelineRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.update_details",
		otelhelper.RequestAttributes(req.LeadID, req.Actor)...)
	defer span.End()

	if err := e.validate.Struct(req); err != nil {
		return nil, e.reject(ctx, span, "update", req.LeadID, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	if req.Details.empty() {
		return nil, e.reject(ctx, span, "update", req.LeadID, invalidRequest("no field to update"))
	}

	var (
		record *models.PipelineRecord
		err    error
	)

	for range maxAttempts {
		record, err = e.tryUpdate(ctx, req)
		if !persistence.IsVersionConflict(err) {
			break
		}
	}

	if persistence.IsVersionConflict(err) {
		e.recorder.ConcurrencyConflict()
		err = fmt.Errorf("%w: lead %s", ErrConcurrencyConflict, req.LeadID)
	}

	if err != nil {
		return nil, e.reject(ctx, span, "update", req.LeadID, err)
	}

	e.logger.InfoContext(ctx, "Record details updated", "lead_id", req.LeadID, "version", record.Version)
	e.publish(ctx, req.LeadID, &events.RecordUpdated{
		BaseEvent: e.baseEvent(events.RecordUpdatedEvent, req.LeadID),
		Record:    *record,
		Actor:     req.Actor,
	})

	return record, nil
}

func (e *Engine) tryUpdate(ctx context.Context, req DetailsRequest) (*models.PipelineRecord, error) {
	record, err := e.loadRecord(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}

	if record.IsClosed() {
		return nil, invalidRequest("record of lead %s is closed in %s", req.LeadID, record.CurrentStage)
	}

	next := record.Clone()
	next.UpdatedAt = e.now()
	req.Details.apply(next)

	if err := e.store.UpdateRecordDetails(ctx, record.Version, next); err != nil {
		switch {
		case persistence.IsVersionConflict(err):
			return nil, err
		case persistence.IsRecordNotFound(err):
			return nil, fmt.Errorf("%w: pipeline record for lead %s", ErrNotFound, req.LeadID)
		default:
			return nil, storeUnavailable("update pipeline record", err)
		}
	}

	return next, nil
}

// DeleteLead removes the lead together with its record and history.
func (e *Engine) DeleteLead(ctx context.Context, leadID string, actor models.Actor) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.delete_lead",
		otelhelper.RequestAttributes(leadID, actor)...)
	defer span.End()

	record, err := e.store.RecordByLeadID(ctx, leadID)
	if err != nil {
		return e.reject(ctx, span, "delete", leadID, storeUnavailable("load pipeline record", err))
	}

	if err := e.store.DeleteLead(ctx, leadID); err != nil {
		if persistence.IsLeadNotFound(err) {
			err = fmt.Errorf("%w: lead %s", ErrNotFound, leadID)
		} else {
			err = storeUnavailable("delete lead", err)
		}

		return e.reject(ctx, span, "delete", leadID, err)
	}

	event := &events.LeadDeleted{BaseEvent: e.baseEvent(events.LeadDeletedEvent, leadID)}
	if record != nil {
		event.RecordID = record.ID
	}

	e.logger.InfoContext(ctx, "Lead deleted", "lead_id", leadID, "actor", actor.ID)
	e.publish(ctx, leadID, event)

	return nil
}
