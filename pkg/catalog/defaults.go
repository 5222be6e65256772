package catalog

import "github.com/dukex/salesflow/pkg/models"

func days(n int) *int {
	return &n
}

// DefaultStages is the built-in stage set of the brokerage.
func DefaultStages() []models.Stage {
	return []models.Stage{
		{ID: models.StageLeadNuevo, Name: "Lead nuevo", Order: 1, IsActive: true, TargetDurationDays: days(1), DefaultProbability: 10, Color: "#9CA3AF"},
		{ID: models.StageContactoInicial, Name: "Contacto inicial", Order: 2, IsActive: true, TargetDurationDays: days(2), DefaultProbability: 20, Color: "#60A5FA"},
		{ID: models.StageCalificacion, Name: "Calificación", Order: 3, IsActive: true, TargetDurationDays: days(3), DefaultProbability: 30, Color: "#818CF8"},
		{ID: models.StageDocumentacion, Name: "Documentación", Order: 4, IsActive: true, TargetDurationDays: days(5), DefaultProbability: 50, Color: "#A78BFA"},
		{ID: models.StagePresentacion, Name: "Presentación", Order: 5, IsActive: true, TargetDurationDays: days(3), DefaultProbability: 60, Color: "#F472B6"},
		{ID: models.StageNegociacion, Name: "Negociación", Order: 6, IsActive: true, TargetDurationDays: days(5), DefaultProbability: 75, Color: "#FBBF24"},
		{ID: models.StageSeguimiento, Name: "Seguimiento", Order: 7, IsActive: true, TargetDurationDays: days(7), DefaultProbability: 40, Color: "#FB923C"},
		{ID: models.StageCierreGanado, Name: "Cierre ganado", Order: 8, IsActive: true, DefaultProbability: 100, Color: "#34D399"},
		{ID: models.StageCierrePerdido, Name: "Cierre perdido", Order: 9, IsActive: true, DefaultProbability: 0, Color: "#F87171"},
	}
}

// Default builds a catalog from DefaultStages.
func Default() *Catalog {
	c, err := New(DefaultStages())
	if err != nil {
		panic(err)
	}

	return c
}
