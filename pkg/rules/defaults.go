package rules

import (
	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
)

func days(n int) *int {
	return &n
}

func allow(from, to models.StageID, fields ...string) models.TransitionRule {
	return models.TransitionRule{From: from, To: to, IsAllowed: true, RequiredFields: fields}
}

func lose(from models.StageID) models.TransitionRule {
	return allow(from, models.StageCierrePerdido)
}

// DefaultRules is the brokerage's built-in rule set. Stale first contacts are
// moved to follow-up automatically; closing a won deal needs a supervisor.
func DefaultRules() []models.TransitionRule {
	toFollowUp := allow(models.StageContactoInicial, models.StageSeguimiento)
	toFollowUp.AutoTransitionDays = days(7)

	staleFollowUp := lose(models.StageSeguimiento)
	staleFollowUp.AutoTransitionDays = days(30)

	win := allow(models.StageNegociacion, models.StageCierreGanado, "total_value", "dni")
	win.RequiresApproval = true

	return []models.TransitionRule{
		allow(models.StageLeadNuevo, models.StageContactoInicial),
		lose(models.StageLeadNuevo),

		allow(models.StageContactoInicial, models.StageCalificacion, "phone"),
		toFollowUp,
		lose(models.StageContactoInicial),

		allow(models.StageCalificacion, models.StageDocumentacion, "dni"),
		allow(models.StageCalificacion, models.StagePresentacion),
		allow(models.StageCalificacion, models.StageSeguimiento),
		lose(models.StageCalificacion),

		allow(models.StageDocumentacion, models.StagePresentacion, "dni"),
		allow(models.StageDocumentacion, models.StageCalificacion),
		allow(models.StageDocumentacion, models.StageSeguimiento),
		lose(models.StageDocumentacion),

		allow(models.StagePresentacion, models.StageNegociacion, "total_value"),
		allow(models.StagePresentacion, models.StageSeguimiento),
		lose(models.StagePresentacion),

		allow(models.StageNegociacion, models.StagePresentacion),
		allow(models.StageNegociacion, models.StageSeguimiento),
		win,
		lose(models.StageNegociacion),

		allow(models.StageSeguimiento, models.StageContactoInicial),
		allow(models.StageSeguimiento, models.StageCalificacion),
		allow(models.StageSeguimiento, models.StageNegociacion),
		staleFollowUp,

		allow(models.StageCierreGanado, models.StageSeguimiento),
		allow(models.StageCierrePerdido, models.StageSeguimiento),
	}
}

// Default builds the default table over c.
func Default(c *catalog.Catalog) *Table {
	t, err := New(c, DefaultRules())
	if err != nil {
		panic(err)
	}

	return t
}
