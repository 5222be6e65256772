package web

import (
	"errors"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func forbidden(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, "forbidden", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps engine errors to problem responses. The detail always
// carries the error text so callers see which rule or field rejected them.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		notAllowed *pipeline.TransitionNotAllowedError
		missing    *pipeline.MissingFieldError
	)

	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())

	case errors.As(err, &notAllowed):
		return problem(c, fiber.StatusUnprocessableEntity, "transition_not_allowed", err.Error())

	case errors.As(err, &missing):
		return problem(c, fiber.StatusUnprocessableEntity, "missing_fields", err.Error())

	case errors.Is(err, pipeline.ErrApprovalRequired):
		return problem(c, fiber.StatusForbidden, "approval_required", err.Error())

	case errors.Is(err, pipeline.ErrSameStage):
		return problem(c, fiber.StatusBadRequest, "same_stage", err.Error())

	case errors.Is(err, pipeline.ErrInvalidStage):
		return problem(c, fiber.StatusBadRequest, "invalid_stage", err.Error())

	case errors.Is(err, pipeline.ErrMissingLossReason):
		return problem(c, fiber.StatusBadRequest, "missing_loss_reason", err.Error())

	case pipeline.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case pipeline.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, pipeline.ErrStoreUnavailable):
		return problem(c, fiber.StatusServiceUnavailable, "store_unavailable", "pipeline store unavailable")

	default:
		return internalError(c, err)
	}
}

func handleCatalogError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, catalog.ErrStageNotFound):
		return problem(c, fiber.StatusNotFound, "stage_not_found", err.Error())
	case errors.Is(err, catalog.ErrDuplicateStage):
		return problem(c, fiber.StatusConflict, "duplicate_stage", err.Error())
	case errors.Is(err, catalog.ErrProtectedStage):
		return problem(c, fiber.StatusUnprocessableEntity, "protected_stage", err.Error())
	case errors.Is(err, catalog.ErrInvalidStage), errors.Is(err, catalog.ErrDuplicateOrder):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}

func handleRuleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, rules.ErrUnknownStage):
		return problem(c, fiber.StatusNotFound, "stage_not_found", err.Error())
	case errors.Is(err, rules.ErrTerminalOutbound):
		return problem(c, fiber.StatusUnprocessableEntity, "terminal_outbound", err.Error())
	case errors.Is(err, rules.ErrSelfTransition), errors.Is(err, rules.ErrInvalidRule):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
