package catalog

import (
	"sync"
	"testing"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultStages(t *testing.T) {
	c, err := New(DefaultStages())
	require.NoError(t, err)

	active := c.ListActiveStages()
	require.Len(t, active, 9)
	assert.Equal(t, models.StageLeadNuevo, active[0].ID)
	assert.Equal(t, models.StageCierrePerdido, active[len(active)-1].ID)

	for i := 1; i < len(active); i++ {
		assert.Less(t, active[i-1].Order, active[i].Order)
	}
}

func TestNew_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]models.Stage) []models.Stage
		wantErr error
	}{
		{
			name: "duplicate id",
			mutate: func(s []models.Stage) []models.Stage {
				dup := s[1]
				dup.Order = 42

				return append(s, dup)
			},
			wantErr: ErrDuplicateStage,
		},
		{
			name: "duplicate active order",
			mutate: func(s []models.Stage) []models.Stage {
				return append(s, models.Stage{ID: "VISITA", Name: "Visita", Order: 3, IsActive: true})
			},
			wantErr: ErrDuplicateOrder,
		},
		{
			name: "missing won stage",
			mutate: func(s []models.Stage) []models.Stage {
				return s[:7]
			},
			wantErr: ErrMissingRequiredStage,
		},
		{
			name: "reopen stage inactive",
			mutate: func(s []models.Stage) []models.Stage {
				s[6].IsActive = false

				return s
			},
			wantErr: ErrMissingRequiredStage,
		},
		{
			name: "malformed id",
			mutate: func(s []models.Stage) []models.Stage {
				return append(s, models.Stage{ID: "visita", Name: "Visita", Order: 10, IsActive: true})
			},
			wantErr: ErrInvalidStage,
		},
		{
			name: "probability out of range",
			mutate: func(s []models.Stage) []models.Stage {
				s[0].DefaultProbability = 101

				return s
			},
			wantErr: ErrInvalidStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mutate(DefaultStages()))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_InactiveStagesMayShareOrder(t *testing.T) {
	stages := append(DefaultStages(), models.Stage{ID: "VISITA", Name: "Visita", Order: 3, IsActive: false})

	c, err := New(stages)
	require.NoError(t, err)
	assert.Len(t, c.Stages(), 10)
	assert.Len(t, c.ListActiveStages(), 9)
}

func TestCatalog_GetStage(t *testing.T) {
	c := Default()

	stage, err := c.GetStage(models.StageNegociacion)
	require.NoError(t, err)
	assert.Equal(t, 75, stage.DefaultProbability)

	_, err = c.GetStage("NO_EXISTE")
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestCatalog_AddAndDeactivate(t *testing.T) {
	c := Default()

	require.NoError(t, c.AddStage(models.Stage{ID: "VISITA", Name: "Visita", Order: 10, IsActive: true}))
	assert.True(t, c.Contains("VISITA"))

	err := c.AddStage(models.Stage{ID: "OTRA", Name: "Otra", Order: 10, IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	require.NoError(t, c.DeactivateStage("VISITA"))
	assert.True(t, c.Contains("VISITA"))

	for _, stage := range c.ListActiveStages() {
		assert.NotEqual(t, models.StageID("VISITA"), stage.ID)
	}

	assert.ErrorIs(t, c.DeactivateStage(models.StageCierreGanado), ErrProtectedStage)
	assert.ErrorIs(t, c.DeactivateStage(models.StageSeguimiento), ErrProtectedStage)
	assert.ErrorIs(t, c.DeactivateStage("NADA"), ErrStageNotFound)

	// the freed order can now be reused by an active stage
	require.NoError(t, c.AddStage(models.Stage{ID: "OTRA", Name: "Otra", Order: 10, IsActive: true}))
}

func TestCatalog_ConcurrentAccess(t *testing.T) {
	c := Default()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_ = c.AddStage(models.Stage{ID: models.StageID("EXTRA_" + string(rune('A'+i))), Name: "x", Order: 100 + i, IsActive: true})
		}()

		go func() {
			defer wg.Done()

			_ = c.ListActiveStages()
		}()
	}

	wg.Wait()
	assert.Len(t, c.ListActiveStages(), 29)
}
