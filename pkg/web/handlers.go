// Package web exposes the sales pipeline over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/salesflow/pkg/analytics"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

type APIHandlers struct {
	engine      *pipeline.Engine
	aggregator  *analytics.Aggregator
	definitions persistence.DefinitionStore
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewAPIHandlers builds the handlers. definitions may be nil, in which case
// stage changes only live in memory.
func NewAPIHandlers(
	logger *slog.Logger,
	engine *pipeline.Engine,
	aggregator *analytics.Aggregator,
	validator *validator.Validate,
	definitions persistence.DefinitionStore,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		aggregator:  aggregator,
		definitions: definitions,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// Register mounts every pipeline route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	p := router.Group("/pipeline")
	p.Get("/stages", h.ListStages)
	p.Post("/stages", h.AddStage)
	p.Post("/stages/:stageId/deactivate", h.DeactivateStage)
	p.Get("/stages/:stageId/targets", h.StageTargets)
	p.Get("/transitions", h.ListTransitions)
	p.Put("/transitions", h.PutTransition)
	p.Get("/metrics", h.StageMetrics)
	p.Get("/forecast", h.Forecast)

	l := router.Group("/leads")
	l.Post("/", h.SaveLead)
	l.Get("/:leadId", h.GetLead)
	l.Delete("/:leadId", h.DeleteLead)
	l.Get("/:leadId/pipeline", h.GetPipeline)
	l.Post("/:leadId/pipeline", h.CreatePipeline)
	l.Patch("/:leadId/pipeline", h.UpdatePipeline)
	l.Get("/:leadId/pipeline/history", h.GetHistory)
	l.Get("/:leadId/pipeline/targets", h.GetTargets)

	router.Get("/health", h.HealthCheck)
}

// actor reads the caller identity set by the authenticating proxy.
func (h *APIHandlers) actor(c fiber.Ctx) (models.Actor, error) {
	actor := models.Actor{
		ID:   strings.TrimSpace(c.Get(ActorIDHeader)),
		Role: models.Role(strings.ToUpper(strings.TrimSpace(c.Get(ActorRoleHeader)))),
	}

	if err := h.validator.Struct(actor); err != nil {
		return actor, err
	}

	return actor, nil
}

func (h *APIHandlers) ListStages(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"stages": h.engine.Catalog().ListActiveStages(),
	})
}

func (h *APIHandlers) AddStage(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	if actor.Role != models.RoleAdmin {
		return forbidden(c, "only administrators can change stages")
	}

	var req StageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	stage := req.toStage()
	if err := h.engine.Catalog().AddStage(stage); err != nil {
		return handleCatalogError(c, err)
	}

	h.definitionChanged(c.Context(), actor, "stage added", "stage", stage.ID)

	return c.Status(fiber.StatusCreated).JSON(stage)
}

func (h *APIHandlers) DeactivateStage(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	if actor.Role != models.RoleAdmin {
		return forbidden(c, "only administrators can change stages")
	}

	id, err := models.ParseStageID(c.Params("stageId"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Catalog().DeactivateStage(id); err != nil {
		return handleCatalogError(c, err)
	}

	h.definitionChanged(c.Context(), actor, "stage deactivated", "stage", id)

	stage, err := h.engine.Catalog().GetStage(id)
	if err != nil {
		return handleCatalogError(c, err)
	}

	return c.JSON(stage)
}

func (h *APIHandlers) ListTransitions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"transitions": h.engine.Rules().Rules(),
	})
}

// PutTransition adds or replaces the rule for one (from, to) pair.
func (h *APIHandlers) PutTransition(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	if actor.Role != models.RoleAdmin {
		return forbidden(c, "only administrators can change transition rules")
	}

	var req TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := req.toRule()
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Rules().Put(rule); err != nil {
		return handleRuleError(c, err)
	}

	h.definitionChanged(c.Context(), actor, "transition rule stored", "from_stage", rule.From, "to_stage", rule.To)

	return c.JSON(rule)
}

// definitionChanged stores the new definition and drops cached analytics. The
// in-memory change already happened, so failures are only logged.
func (h *APIHandlers) definitionChanged(ctx context.Context, actor models.Actor, what string, args ...any) {
	logger := h.logger.With(args...).With("actor", actor.ID)

	if h.definitions != nil {
		err := h.definitions.SaveDefinition(ctx, h.engine.Catalog().Stages(), h.engine.Rules().Rules())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to store pipeline definition", "error", err)
		}
	}

	if err := h.aggregator.Invalidate(ctx); err != nil {
		logger.WarnContext(ctx, "Failed to invalidate analytics cache", "error", err)
	}

	logger.InfoContext(ctx, "Pipeline definition changed", "change", what)
}

func (h *APIHandlers) StageTargets(c fiber.Ctx) error {
	id, err := models.ParseStageID(c.Params("stageId"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	if !h.engine.Catalog().Contains(id) {
		return problem(c, fiber.StatusNotFound, "stage_not_found", "stage not found: "+string(id))
	}

	return c.JSON(fiber.Map{
		"from":    id,
		"targets": h.engine.Rules().ListAllowedTargets(id),
	})
}

func (h *APIHandlers) StageMetrics(c fiber.Ctx) error {
	metrics, err := h.aggregator.ComputeStageMetrics(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"metrics": metrics,
	})
}

func (h *APIHandlers) Forecast(c fiber.Ctx) error {
	period, err := models.ParsePeriod(strings.ToUpper(c.Query("period")))
	if err != nil {
		return badRequest(c, err.Error())
	}

	forecast, err := h.aggregator.ComputeForecast(c.Context(), period)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(forecast)
}

func (h *APIHandlers) SaveLead(c fiber.Ctx) error {
	var req LeadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	lead, err := h.engine.SaveLead(c.Context(), &models.Lead{
		ID:     req.ID,
		Name:   req.Name,
		Phone:  req.Phone,
		Email:  req.Email,
		DNI:    req.DNI,
		Fields: req.Fields,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(lead)
}

func (h *APIHandlers) GetLead(c fiber.Ctx) error {
	lead, err := h.engine.LeadByID(c.Context(), c.Params("leadId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) DeleteLead(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	if err := h.engine.DeleteLead(c.Context(), c.Params("leadId"), actor); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	record, err := h.engine.RecordByLeadID(c.Context(), c.Params("leadId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) CreatePipeline(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	var req CreatePipelineRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.engine.CreateRecord(c.Context(), pipeline.CreateRequest{
		LeadID:            c.Params("leadId"),
		Actor:             actor,
		TotalValue:        req.TotalValue,
		ExpectedCloseDate: req.ExpectedCloseDate,
		AssignedTo:        req.AssignedTo,
		Notes:             req.Notes,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) UpdatePipeline(c fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return badRequest(c, "Actor headers are required: "+err.Error())
	}

	var req UpdatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.ToStage == nil && !req.hasDetails() {
		return badRequest(c, "Nothing to update: send to_stage or a deal field")
	}

	leadID := c.Params("leadId")
	response := PipelineResponse{Warnings: []pipeline.Warning{}}

	if req.ToStage == nil {
		record, err := h.engine.UpdateDetails(c.Context(), pipeline.DetailsRequest{
			LeadID:  leadID,
			Actor:   actor,
			Details: req.dealDetails(),
		})
		if err != nil {
			return handleServiceError(c, err)
		}

		response.Record = record

		return c.JSON(response)
	}

	// A stage change carries the deal fields into the same commit, so a
	// rejected move leaves the record untouched.
	move, err := h.moveRequest(leadID, actor, req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if req.hasDetails() {
		details := req.dealDetails()
		move.Details = &details
	}

	result, err := h.engine.MoveToStage(c.Context(), move)
	if err != nil {
		return handleServiceError(c, err)
	}

	response.Record = result.Record
	response.Entry = &result.Entry
	response.Warnings = result.Warnings

	return c.JSON(response)
}

func (h *APIHandlers) moveRequest(leadID string, actor models.Actor, req UpdatePipelineRequest) (pipeline.MoveRequest, error) {
	move := pipeline.MoveRequest{
		LeadID:              leadID,
		ToStage:             models.StageID(strings.TrimSpace(*req.ToStage)),
		Actor:               actor,
		Notes:               req.Notes,
		ProbabilityOverride: req.ProbabilityOverride,
		TransitionType:      models.TransitionManual,
		Metadata:            req.Metadata,
	}

	if req.LossReason != nil {
		reason, err := models.ParseLossReason(strings.ToUpper(*req.LossReason))
		if err != nil {
			return move, err
		}

		move.LossReason = &reason
	}

	return move, nil
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	history, err := h.engine.History(c.Context(), c.Params("leadId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"lead_id": c.Params("leadId"),
		"history": history,
	})
}

func (h *APIHandlers) GetTargets(c fiber.Ctx) error {
	targets, err := h.engine.AllowedTargets(c.Context(), c.Params("leadId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"targets": targets,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Salesflow API is healthy"
	httpStatus := http.StatusOK
	store := "ok"

	if err := h.engine.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Salesflow API is unhealthy"
		httpStatus = http.StatusServiceUnavailable
		store = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": store,
		},
		"timestamp": time.Now().UTC(),
	})
}
