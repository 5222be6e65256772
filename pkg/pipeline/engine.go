// Package pipeline implements the transition engine: the only component allowed
// to change a record's stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/events"
	"github.com/dukex/salesflow/pkg/ledger"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/otelhelper"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxAttempts bounds optimistic-lock retries: the first try plus one re-read.
const maxAttempts = 2

// Store is the persistence the engine needs.
type Store interface {
	persistence.RecordStore
	persistence.LeadStore
}

// Recorder receives engine outcomes, typically Prometheus counters.
type Recorder interface {
	TransitionCommitted(from, to models.StageID, kind models.TransitionType)
	TransitionRejected(reason string)
	ConcurrencyConflict()
	RecordCreated()
}

type noopRecorder struct{}

func (noopRecorder) TransitionCommitted(models.StageID, models.StageID, models.TransitionType) {}
func (noopRecorder) TransitionRejected(string) {}
func (noopRecorder) ConcurrencyConflict() {}
func (noopRecorder) RecordCreated() {}

type Engine struct {
	store     Store
	rules     *rules.Table
	ledger    *ledger.Ledger
	approver  Approver
	publisher eventbus.EventPublisher
	recorder  Recorder
	tracer    trace.Tracer
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

type Option func(*Engine)

// WithPublisher enables event emission after commits.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithApprover(approver Approver) Option {
	return func(e *Engine) { e.approver = approver }
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithClock replaces time.Now. Returned times are normalised to UTC microseconds,
// the precision every backend keeps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	}
}

func NewEngine(logger *slog.Logger, store Store, table *rules.Table, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		rules:    table,
		ledger:   ledger.New(store),
		approver: DefaultApprover(),
		recorder: noopRecorder{},
		tracer:   otelhelper.Tracer("salesflow/pipeline"),
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	WithClock(time.Now)(e)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Catalog returns the stage catalog the rule table was built against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.rules.Catalog()
}

// Rules returns the transition rule table.
func (e *Engine) Rules() *rules.Table {
	return e.rules
}

// HealthCheck reports whether the store answers.
func (e *Engine) HealthCheck(ctx context.Context) error {
	checker, ok := e.store.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return nil
	}

	if err := checker.HealthCheck(ctx); err != nil {
		return storeUnavailable("check store health", err)
	}

	return nil
}

// MoveRequest asks for a single stage change.
type MoveRequest struct {
	LeadID              string         `validate:"required"`
	ToStage             models.StageID `validate:"required"`
	Actor               models.Actor   `validate:"required"`
	Notes               string         `validate:"max=2000"`
	LossReason          *models.LossReason
	ProbabilityOverride *int `validate:"omitempty,min=0,max=100"`
	TransitionType      models.TransitionType
	Metadata            map[string]any
	// Details are written in the same commit as the move and count for the
	// required-field checks. The target stage's probability still wins
	// unless ProbabilityOverride is set.
	Details *DealDetails
}

// MoveResult carries the committed record, its new history entry and any
// advisory warnings.
type MoveResult struct {
	Record   *models.PipelineRecord `json:"record"`
	Entry    models.HistoryEntry    `json:"entry"`
	Warnings []Warning              `json:"warnings"`
}

// MoveToStage validates and commits a transition. The stage update and the
// history append happen in one store transaction; a lost optimistic lock is
// retried once against the fresh record.
func (e *Engine) MoveToStage(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.move_to_stage",
		otelhelper.RequestAttributes(req.LeadID, req.Actor)...)
	defer span.End()

	if err := e.checkMoveRequest(&req); err != nil {
		return nil, e.reject(ctx, span, "move", req.LeadID, err)
	}

	var (
		result *MoveResult
		from   models.StageID
		err    error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, from, err = e.tryMove(ctx, req, from)
		if !persistence.IsVersionConflict(err) {
			break
		}

		e.logger.WarnContext(ctx, "Version conflict on transition",
			"lead_id", req.LeadID, "from", from, "to_stage", req.ToStage, "attempt", attempt)
	}

	if persistence.IsVersionConflict(err) {
		err = fmt.Errorf("%w: lead %s", ErrConcurrencyConflict, req.LeadID)
	}

	if errors.Is(err, ErrConcurrencyConflict) {
		e.recorder.ConcurrencyConflict()
	}

	if err != nil {
		return nil, e.reject(ctx, span, "move", req.LeadID, err)
	}

	span.SetAttributes(otelhelper.EntryAttributes(result.Entry)...)

	e.recorder.TransitionCommitted(result.Entry.FromStage, result.Entry.ToStage, result.Entry.TransitionType)
	e.logger.InfoContext(ctx, "Stage changed",
		"lead_id", req.LeadID,
		"from", result.Entry.FromStage,
		"to", result.Entry.ToStage,
		"type", result.Entry.TransitionType,
		"dwell_days", result.Entry.DurationInPreviousStageDays,
		"warnings", result.Warnings)

	e.publish(ctx, req.LeadID, &events.StageChanged{
		BaseEvent:      e.baseEvent(events.StageChangedEvent, req.LeadID),
		Record:         *result.Record,
		From:           result.Entry.FromStage,
		To:             result.Entry.ToStage,
		TransitionType: result.Entry.TransitionType,
		Actor:          req.Actor,
		HistoryEntryID: result.Entry.ID,
	})

	return result, nil
}

func (e *Engine) checkMoveRequest(req *MoveRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if _, err := models.ParseStageID(string(req.ToStage)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStage, err)
	}

	if req.TransitionType == "" {
		req.TransitionType = models.TransitionManual
	}

	if !req.TransitionType.Valid() {
		return invalidRequest("unknown transition type %q", req.TransitionType)
	}

	if req.LossReason != nil {
		if _, err := models.ParseLossReason(string(*req.LossReason)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	return nil
}

// tryMove runs one read-validate-commit cycle and returns the stage the move
// started from. A persistence.ErrVersionConflict is returned unchanged so the
// caller can retry. On a retry, expectedFrom is the stage seen by the first
// attempt: the move is re-applied only if the record is still there, so two
// moves never both succeed out of the same stage.
func (e *Engine) tryMove(ctx context.Context, req MoveRequest, expectedFrom models.StageID) (*MoveResult, models.StageID, error) {
	record, err := e.loadRecord(ctx, req.LeadID)
	if err != nil {
		return nil, expectedFrom, err
	}

	from := record.CurrentStage

	if expectedFrom != "" && from != expectedFrom {
		if from != req.ToStage && !e.rules.IsTransitionAllowed(from, req.ToStage) {
			return nil, from, &TransitionNotAllowedError{From: from, To: req.ToStage}
		}

		return nil, from, fmt.Errorf("%w: lead %s moved from %s to %s", ErrConcurrencyConflict, req.LeadID, expectedFrom, from)
	}

	result, err := e.commitMove(ctx, req, record)

	return result, from, err
}

func (e *Engine) commitMove(ctx context.Context, req MoveRequest, record *models.PipelineRecord) (*MoveResult, error) {
	from := record.CurrentStage
	if from == req.ToStage {
		return nil, fmt.Errorf("%w: %s", ErrSameStage, from)
	}

	target, err := e.Catalog().GetStage(req.ToStage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStage, err)
	}

	if !e.rules.IsTransitionAllowed(from, req.ToStage) {
		return nil, &TransitionNotAllowedError{From: from, To: req.ToStage}
	}

	rule, _ := e.rules.GetRule(from, req.ToStage)

	if rule.RequiresApproval && !e.approver.CanApprove(req.Actor, rule) {
		return nil, fmt.Errorf("%w: %s -> %s cannot be executed by role %s", ErrApprovalRequired, from, req.ToStage, req.Actor.Role)
	}

	next := record.Clone()
	if req.Details != nil {
		req.Details.apply(next)
	}

	if err := e.checkRequiredFields(ctx, rule, next); err != nil {
		return nil, err
	}

	if req.ToStage == models.StageCierrePerdido && req.LossReason == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrMissingLossReason, from, req.ToStage)
	}

	now := e.now()
	dwell := record.DwellDays(now)

	applyStage(next, target, req, now)

	warnings := orderWarnings(e.Catalog(), from, req.ToStage)

	entry := models.NewTransitionedEntry(record.ID, from, req.ToStage, req.TransitionType, dwell, req.Actor.ID, now)
	entry.ID = newID()
	entry.Notes = req.Notes
	entry.Metadata = entryMetadata(req, warnings)

	if err := e.store.CommitTransition(ctx, record.Version, next, entry); err != nil {
		switch {
		case persistence.IsVersionConflict(err):
			return nil, err
		case persistence.IsRecordNotFound(err):
			return nil, fmt.Errorf("%w: pipeline record for lead %s", ErrNotFound, req.LeadID)
		default:
			return nil, storeUnavailable("commit transition", err)
		}
	}

	return &MoveResult{Record: next, Entry: entry, Warnings: warnings}, nil
}

// applyStage moves record into target and keeps the closing fields consistent:
// they are set exactly when the record sits in a terminal stage.
func applyStage(record *models.PipelineRecord, target models.Stage, req MoveRequest, now time.Time) {
	record.CurrentStage = target.ID
	record.StageEnteredAt = now
	record.UpdatedAt = now

	record.ProbabilityPercent = target.DefaultProbability
	if req.ProbabilityOverride != nil {
		record.ProbabilityPercent = *req.ProbabilityOverride
	}

	switch target.ID {
	case models.StageCierreGanado:
		won := true
		record.ClosedAt = &now
		record.Won = &won
		record.LossReason = nil
	case models.StageCierrePerdido:
		won := false
		reason := *req.LossReason
		record.ClosedAt = &now
		record.Won = &won
		record.LossReason = &reason
	default:
		record.ClosedAt = nil
		record.Won = nil
		record.LossReason = nil
	}
}

func entryMetadata(req MoveRequest, warnings []Warning) map[string]any {
	if len(req.Metadata) == 0 && req.LossReason == nil && len(warnings) == 0 {
		return nil
	}

	metadata := make(map[string]any, len(req.Metadata)+2)
	maps.Copy(metadata, req.Metadata)

	if req.LossReason != nil && req.ToStage == models.StageCierrePerdido {
		metadata["loss_reason"] = string(*req.LossReason)
	}

	if len(warnings) > 0 {
		names := make([]string, 0, len(warnings))
		for _, warning := range warnings {
			names = append(names, string(warning))
		}

		metadata["warnings"] = names
	}

	return metadata
}

func (e *Engine) checkRequiredFields(ctx context.Context, rule models.TransitionRule, record *models.PipelineRecord) error {
	if len(rule.RequiredFields) == 0 {
		return nil
	}

	var lead *models.Lead

	if needsLead(rule.RequiredFields) {
		var err error

		lead, err = e.store.LeadByID(ctx, record.LeadID)
		if err != nil {
			return storeUnavailable("load lead", err)
		}
	}

	missing := missingFields(rule.RequiredFields, record, lead)
	if len(missing) > 0 {
		return &MissingFieldError{From: rule.From, To: rule.To, Fields: missing}
	}

	return nil
}

func (e *Engine) loadRecord(ctx context.Context, leadID string) (*models.PipelineRecord, error) {
	record, err := e.store.RecordByLeadID(ctx, leadID)
	if err != nil {
		return nil, storeUnavailable("load pipeline record", err)
	}

	if record == nil {
		return nil, fmt.Errorf("%w: pipeline record for lead %s", ErrNotFound, leadID)
	}

	return record, nil
}

// reject logs err at a level matching its nature and records it on span.
func (e *Engine) reject(ctx context.Context, span trace.Span, op, leadID string, err error) error {
	reason := rejectionReason(err)
	e.recorder.TransitionRejected(reason)

	switch {
	case IsValidationError(err):
		otelhelper.SetRejected(span, err)
		e.logger.DebugContext(ctx, "Request rejected", "op", op, "lead_id", leadID, "reason", reason, "error", err)
	case errors.Is(err, ErrConcurrencyConflict):
		otelhelper.SetRejected(span, err)
		e.logger.WarnContext(ctx, "Request lost the optimistic lock", "op", op, "lead_id", leadID, "error", err)
	default:
		otelhelper.SetError(span, err, attribute.String(otelhelper.LeadIDKey, leadID))
		e.logger.ErrorContext(ctx, "Request failed", "op", op, "lead_id", leadID, "error", err)
	}

	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrInvalidStage):
		return "invalid_stage"
	case errors.Is(err, ErrSameStage):
		return "same_stage"
	case errors.Is(err, ErrTransitionNotAllowed):
		return "transition_not_allowed"
	case errors.Is(err, ErrApprovalRequired):
		return "approval_required"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrMissingLossReason):
		return "missing_loss_reason"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	default:
		return "store_unavailable"
	}
}

func (e *Engine) baseEvent(eventType events.EventType, leadID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        newID(),
		Type:      eventType,
		Timestamp: e.now(),
		LeadID:    leadID,
	}
}

// publish is best effort: the change is already committed.
func (e *Engine) publish(ctx context.Context, leadID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, leadID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "lead_id", leadID, "error", err)
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
